package request

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	UserID     string      `json:"user_id" binding:"required" example:"u-1001"`
	ServiceID  string      `json:"service_id" binding:"required" example:"seo-article"`
	Parameters *Parameters `json:"parameters" binding:"required"`
}

// Parameters 生成参数
type Parameters struct {
	Topic    string            `json:"topic" example:"跨境电商物流趋势"`
	Length   int               `json:"length" binding:"required,gt=0" example:"3000"`
	Audience string            `json:"audience" example:"entrepreneurs"`
	Tone     string            `json:"tone" example:"professional"`
	Keywords string            `json:"keywords" example:"logistics,cross-border,trends"`
	Extra    map[string]string `json:"extra"`
}
