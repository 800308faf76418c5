package request

import "cgp/internal/app/domains/entity/etorder"

// ToParametersEntity 请求 DTO 转领域参数
func (r *CreateOrderRequest) ToParametersEntity() etorder.Parameters {
	params := etorder.Parameters{}
	if r.Parameters == nil {
		return params
	}

	params.Topic = r.Parameters.Topic
	params.Length = r.Parameters.Length
	params.Audience = r.Parameters.Audience
	params.Tone = r.Parameters.Tone
	params.Keywords = r.Parameters.Keywords

	if len(r.Parameters.Extra) > 0 {
		extra := make(map[string]string, len(r.Parameters.Extra))
		for k, v := range r.Parameters.Extra {
			extra[k] = v
		}
		params.Extra = extra
	}

	return params
}
