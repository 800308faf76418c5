package etorder

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// 错误定义
var (
	ErrInvalidOrderID   = errors.New("order ID cannot be empty")
	ErrInvalidServiceID = errors.New("service ID cannot be empty")
	ErrInvalidLength    = errors.New("target length must be greater than zero")
)

// Order 订单聚合根（领域对象）
// 一条生成文本的工作单元，状态只能通过领域行为变更
type Order struct {
	ID              string          // 订单ID (UUID)
	UserID          string          // 用户ID
	ServiceID       string          // 服务配置ID
	Parameters      Parameters      // 生成参数
	Status          OrderStatus     // 订单状态
	Progress        int             // 进度 0-100，单调不减
	Result          string          // 最终文本（仅 completed）
	QualityMetrics  *QualityMetrics // 质量指标（仅 completed）
	ProcessingSteps []Step          // 阶段日志（只追加）
	CreatedAt       time.Time       // 创建时间
	CompletedAt     *time.Time      // 终态时间
	ErrorMessage    string          // 失败原因（仅 failed）
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusGenerating OrderStatus = "generating"
	OrderStatusChecking   OrderStatus = "checking"
	OrderStatusOptimizing OrderStatus = "optimizing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

// Parameters 生成参数（值对象）
// 已知字段 + 服务自定义扩展字段
type Parameters struct {
	Topic    string            // 主题（可选）
	Length   int               // 目标字符数，> 0
	Audience string            // 目标受众
	Tone     string            // 语气
	Keywords string            // 关键词（逗号分隔）
	Extra    map[string]string // 服务自定义扩展字段
}

// TemplateVars 返回模板插值变量
// 已知字段优先于同名扩展字段
func (p Parameters) TemplateVars() map[string]string {
	vars := make(map[string]string, len(p.Extra)+5)
	for k, v := range p.Extra {
		vars[k] = v
	}
	vars["topic"] = p.Topic
	vars["length"] = strconv.Itoa(p.Length)
	vars["audience"] = p.Audience
	vars["tone"] = p.Tone
	vars["keywords"] = p.Keywords
	return vars
}

// QualityMetrics 质量指标（值对象），各项 0-100
type QualityMetrics struct {
	Uniqueness       float64
	Readability      float64
	SEOScore         float64
	GrammarScore     float64
	AIDetectionScore float64
}

// Step 阶段日志条目
type Step struct {
	Timestamp time.Time
	Message   string
}

// NewOrder 创建订单（工厂方法）
func NewOrder(id, userID, serviceID string, params Parameters) (*Order, error) {
	// 业务规则校验
	if id == "" {
		return nil, ErrInvalidOrderID
	}
	if serviceID == "" {
		return nil, ErrInvalidServiceID
	}
	if params.Length <= 0 {
		return nil, ErrInvalidLength
	}

	return &Order{
		ID:              id,
		UserID:          userID,
		ServiceID:       serviceID,
		Parameters:      params,
		Status:          OrderStatusPending,
		Progress:        0,
		ProcessingSteps: make([]Step, 0, 8),
		CreatedAt:       time.Now(),
	}, nil
}

// IsTerminal 是否已到达终态
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusFailed
}

// ApplyTransition 应用非终态状态迁移（领域行为）
// 进度单调性与终态冻结由此强制保证，违反属编程错误，直接 panic
func (o *Order) ApplyTransition(status OrderStatus, progress int, message string) {
	if o.IsTerminal() {
		panic(fmt.Sprintf("etorder: transition on terminal order %s (%s -> %s)", o.ID, o.Status, status))
	}
	if progress < o.Progress {
		panic(fmt.Sprintf("etorder: progress must not decrease on order %s (%d -> %d)", o.ID, o.Progress, progress))
	}

	o.Status = status
	o.Progress = progress
	o.appendStep(message)
}

// Complete 标记完成（领域行为）
// 设置最终文本与质量指标，冻结订单
func (o *Order) Complete(result string, metrics QualityMetrics, message string) {
	o.ApplyTransition(OrderStatusCompleted, 100, message)
	o.Result = result
	m := metrics
	o.QualityMetrics = &m
	now := time.Now()
	o.CompletedAt = &now
}

// Fail 标记失败（领域行为）
// 进度保持最后一次成功值，记录失败原因，冻结订单
func (o *Order) Fail(errMessage string, message string) {
	o.ApplyTransition(OrderStatusFailed, o.Progress, message)
	o.ErrorMessage = errMessage
	now := time.Now()
	o.CompletedAt = &now
}

// Clone 深拷贝（仓储读取返回快照用）
func (o *Order) Clone() *Order {
	clone := *o

	clone.ProcessingSteps = make([]Step, len(o.ProcessingSteps))
	copy(clone.ProcessingSteps, o.ProcessingSteps)

	if o.Parameters.Extra != nil {
		extra := make(map[string]string, len(o.Parameters.Extra))
		for k, v := range o.Parameters.Extra {
			extra[k] = v
		}
		clone.Parameters.Extra = extra
	}

	if o.QualityMetrics != nil {
		m := *o.QualityMetrics
		clone.QualityMetrics = &m
	}

	if o.CompletedAt != nil {
		t := *o.CompletedAt
		clone.CompletedAt = &t
	}

	return &clone
}

// appendStep 追加阶段日志
func (o *Order) appendStep(message string) {
	o.ProcessingSteps = append(o.ProcessingSteps, Step{
		Timestamp: time.Now(),
		Message:   message,
	})
}
