package rpservice

import (
	"context"

	"cgp/internal/app/domains/entity/etservice"
)

// ServiceConfigRepository 服务配置仓储接口
type ServiceConfigRepository interface {
	// GetByID 查询服务配置，不存在时 found 为 false
	GetByID(ctx context.Context, serviceID string) (*etservice.ServiceConfig, bool)

	// List 查询全部服务配置
	List(ctx context.Context) []*etservice.ServiceConfig
}
