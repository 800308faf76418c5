package etservice

// ServiceConfig 服务配置（领域对象）
// 每个 service_id 对应一套提示词模板、查重阈值和优化开关
type ServiceConfig struct {
	ID                  string
	Name                string
	PromptTemplate      string
	UniquenessThreshold float64 // 0-100，低于该值触发一次改写循环
	SEO                 SEOSettings
	Humanize            HumanizeSettings
}

// SEOSettings SEO 优化设置（值对象）
type SEOSettings struct {
	Enabled           bool
	KeywordDensity    float64
	AddHeadings       bool
	InternalLinkCount int
}

// HumanizeSettings 拟人化设置（值对象）
type HumanizeSettings struct {
	Enabled     bool
	Level       string // low/medium/high
	Variability float64
}
