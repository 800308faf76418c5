package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Services      []ServiceConfig     `mapstructure:"services"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// RedisConfig Redis 配置（进度广播桥，可选）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CollaboratorsConfig 文本处理协作方配置
type CollaboratorsConfig struct {
	BaseURL    string           `mapstructure:"base_url"`
	Timeout    time.Duration    `mapstructure:"timeout"`
	Uniqueness UniquenessConfig `mapstructure:"uniqueness"`
}

// UniquenessConfig 查重轮询配置（协作方自身的有界重试约定）
type UniquenessConfig struct {
	PollAttempts int           `mapstructure:"poll_attempts"` // 最大轮询次数
	PollInterval time.Duration `mapstructure:"poll_interval"` // 轮询间隔
}

// PipelineConfig 流水线运行配置
type PipelineConfig struct {
	MaxConcurrentRuns int64         `mapstructure:"max_concurrent_runs"` // 并发处理订单数上限
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`       // 单个协作方调用超时
}

// ServiceConfig 服务配置（每个 service_id 一套流水线参数）
type ServiceConfig struct {
	ID                  string         `mapstructure:"id"`
	Name                string         `mapstructure:"name"`
	PromptTemplate      string         `mapstructure:"prompt_template"`
	UniquenessThreshold float64        `mapstructure:"uniqueness_threshold"`
	SEO                 SEOConfig      `mapstructure:"seo"`
	Humanize            HumanizeConfig `mapstructure:"humanize"`
}

// SEOConfig SEO 优化配置
type SEOConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	KeywordDensity    float64 `mapstructure:"keyword_density"`
	AddHeadings       bool    `mapstructure:"add_headings"`
	InternalLinkCount int     `mapstructure:"internal_link_count"`
}

// HumanizeConfig 拟人化配置
type HumanizeConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Level       string  `mapstructure:"level"` // low/medium/high
	Variability float64 `mapstructure:"variability"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// LoadDefault 加载默认配置文件路径
func LoadDefault() (*Config, error) {
	return Load("config/config.yaml")
}

// applyDefaults 填充默认值
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		c.Pipeline.MaxConcurrentRuns = 32
	}
	if c.Pipeline.StageTimeout <= 0 {
		c.Pipeline.StageTimeout = 60 * time.Second
	}
	if c.Collaborators.Timeout <= 0 {
		c.Collaborators.Timeout = 30 * time.Second
	}
	if c.Collaborators.Uniqueness.PollAttempts <= 0 {
		c.Collaborators.Uniqueness.PollAttempts = 10
	}
	if c.Collaborators.Uniqueness.PollInterval <= 0 {
		c.Collaborators.Uniqueness.PollInterval = 500 * time.Millisecond
	}
}

// Validate 验证配置完整性
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.Collaborators.BaseURL == "" {
		return fmt.Errorf("collaborators.base_url is required")
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("at least one service is required")
	}
	for i, svc := range c.Services {
		if svc.ID == "" {
			return fmt.Errorf("services[%d].id is required", i)
		}
		if svc.PromptTemplate == "" {
			return fmt.Errorf("services[%d].prompt_template is required", i)
		}
		if svc.UniquenessThreshold < 0 || svc.UniquenessThreshold > 100 {
			return fmt.Errorf("services[%d].uniqueness_threshold must be within [0, 100]", i)
		}
	}
	return nil
}
