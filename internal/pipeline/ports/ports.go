package ports

import "context"

// 流水线对外部文本处理协作方的类型化端口定义
// 实现位于基础设施层（HTTP 适配器）或测试桩

// GenerationConstraints 文本生成约束
type GenerationConstraints struct {
	Length   int    // 目标字符数
	Tone     string // 语气
	Audience string // 受众
	Keywords string // 关键词（逗号分隔）
}

// Fragment 重复片段
type Fragment struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// UniquenessReport 查重结果
type UniquenessReport struct {
	Score              float64    `json:"score"` // 0-100
	DuplicateFragments []Fragment `json:"duplicate_fragments"`
}

// SEOParams SEO 优化参数
type SEOParams struct {
	Keywords          string  `json:"keywords"`
	KeywordDensity    float64 `json:"keyword_density"`
	AddHeadings       bool    `json:"add_headings"`
	InternalLinkCount int     `json:"internal_link_count"`
}

// HumanizeLevel 拟人化强度
type HumanizeLevel string

const (
	HumanizeLevelLow    HumanizeLevel = "low"
	HumanizeLevelMedium HumanizeLevel = "medium"
	HumanizeLevelHigh   HumanizeLevel = "high"
)

// HumanizeSettings 拟人化参数
type HumanizeSettings struct {
	Level       HumanizeLevel `json:"level"`
	Variability float64       `json:"variability"`
}

// QualityMetrics 质量评分，各项 0-100
type QualityMetrics struct {
	Uniqueness       float64 `json:"uniqueness"`
	Readability      float64 `json:"readability"`
	SEOScore         float64 `json:"seo_score"`
	GrammarScore     float64 `json:"grammar_score"`
	AIDetectionScore float64 `json:"ai_detection_score"`
}

// Generator 文本生成端口
type Generator interface {
	Generate(ctx context.Context, prompt string, constraints GenerationConstraints) (string, error)
}

// UniquenessChecker 查重端口
// 有界重试（轮询上限）属于协作方自身契约，调用方只看到一次阻塞调用
type UniquenessChecker interface {
	Check(ctx context.Context, text string) (*UniquenessReport, error)
}

// Rewriter 改写端口
type Rewriter interface {
	Rewrite(ctx context.Context, text string, fragments []Fragment) (string, error)
}

// SEOOptimizer SEO 优化端口
type SEOOptimizer interface {
	Optimize(ctx context.Context, text string, params SEOParams) (string, error)
}

// Humanizer 拟人化端口
type Humanizer interface {
	Humanize(ctx context.Context, text string, settings HumanizeSettings) (string, error)
}

// QualityScorer 质量评分端口
type QualityScorer interface {
	Score(ctx context.Context, text string, keywords string) (*QualityMetrics, error)
}

// Collaborators 协作方端口集合（编排器依赖注入）
type Collaborators struct {
	Generator Generator
	Checker   UniquenessChecker
	Rewriter  Rewriter
	SEO       SEOOptimizer
	Humanizer Humanizer
	Scorer    QualityScorer
}
