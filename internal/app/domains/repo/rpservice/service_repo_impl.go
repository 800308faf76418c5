package rpservice

import (
	"context"

	"cgp/internal/app/config"
	"cgp/internal/app/domains/entity/etservice"
)

// ConfigServiceRepository 配置文件驱动的服务配置仓储
// 服务配置随进程启动加载，运行期只读，无需加锁
type ConfigServiceRepository struct {
	services map[string]*etservice.ServiceConfig
	order    []string // 保持配置文件中的声明顺序
}

var _ ServiceConfigRepository = (*ConfigServiceRepository)(nil)

// NewConfigServiceRepository 从配置节构建服务配置仓储
func NewConfigServiceRepository(entries []config.ServiceConfig) *ConfigServiceRepository {
	services := make(map[string]*etservice.ServiceConfig, len(entries))
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		services[entry.ID] = &etservice.ServiceConfig{
			ID:                  entry.ID,
			Name:                entry.Name,
			PromptTemplate:      entry.PromptTemplate,
			UniquenessThreshold: entry.UniquenessThreshold,
			SEO: etservice.SEOSettings{
				Enabled:           entry.SEO.Enabled,
				KeywordDensity:    entry.SEO.KeywordDensity,
				AddHeadings:       entry.SEO.AddHeadings,
				InternalLinkCount: entry.SEO.InternalLinkCount,
			},
			Humanize: etservice.HumanizeSettings{
				Enabled:     entry.Humanize.Enabled,
				Level:       entry.Humanize.Level,
				Variability: entry.Humanize.Variability,
			},
		}
		order = append(order, entry.ID)
	}

	return &ConfigServiceRepository{
		services: services,
		order:    order,
	}
}

// GetByID 查询服务配置
func (r *ConfigServiceRepository) GetByID(ctx context.Context, serviceID string) (*etservice.ServiceConfig, bool) {
	svc, ok := r.services[serviceID]
	return svc, ok
}

// List 查询全部服务配置（配置声明顺序）
func (r *ConfigServiceRepository) List(ctx context.Context) []*etservice.ServiceConfig {
	out := make([]*etservice.ServiceConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.services[id])
	}
	return out
}
