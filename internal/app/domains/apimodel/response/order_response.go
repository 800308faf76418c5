package response

import "time"

// OrderResponse 订单响应（DTO）
type OrderResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ServiceID      string          `json:"service_id"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	Result         string          `json:"result,omitempty"`
	QualityMetrics *QualityMetrics `json:"quality_metrics,omitempty"`
	Steps          []Step          `json:"processing_steps"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// QualityMetrics 质量指标（DTO）
type QualityMetrics struct {
	Uniqueness       float64 `json:"uniqueness"`
	Readability      float64 `json:"readability"`
	SEOScore         float64 `json:"seo_score"`
	GrammarScore     float64 `json:"grammar_score"`
	AIDetectionScore float64 `json:"ai_detection_score"`
}

// Step 阶段日志条目（DTO）
type Step struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}
