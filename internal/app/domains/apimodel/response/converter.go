package response

import "cgp/internal/app/domains/entity/etorder"

// FromOrderEntity 领域对象转响应 DTO
func FromOrderEntity(order *etorder.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:           order.ID,
		UserID:       order.UserID,
		ServiceID:    order.ServiceID,
		Status:       string(order.Status),
		Progress:     order.Progress,
		Result:       order.Result,
		ErrorMessage: order.ErrorMessage,
		CreatedAt:    order.CreatedAt,
		CompletedAt:  order.CompletedAt,
	}

	if order.QualityMetrics != nil {
		resp.QualityMetrics = &QualityMetrics{
			Uniqueness:       order.QualityMetrics.Uniqueness,
			Readability:      order.QualityMetrics.Readability,
			SEOScore:         order.QualityMetrics.SEOScore,
			GrammarScore:     order.QualityMetrics.GrammarScore,
			AIDetectionScore: order.QualityMetrics.AIDetectionScore,
		}
	}

	resp.Steps = make([]Step, 0, len(order.ProcessingSteps))
	for _, step := range order.ProcessingSteps {
		resp.Steps = append(resp.Steps, Step{
			Timestamp: step.Timestamp,
			Message:   step.Message,
		})
	}

	return resp
}

// FromOrderEntities 批量转换
func FromOrderEntities(orders []*etorder.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromOrderEntity(order))
	}
	return out
}
