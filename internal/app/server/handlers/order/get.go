package order

import (
	"github.com/gin-gonic/gin"

	"cgp/internal/app/domains/apimodel/response"
	"cgp/internal/app/domains/services/svorder"
	"cgp/internal/app/pkg/ginx"
)

// Get 获取订单详情
// GET /api/v1/orders/:id
// 创建订单返回 code=3001 时，通过此接口轮询结果
func (h *OrderHandler) Get(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		ginx.BadRequest(c, "order_id required")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if svorder.IsNotFound(err) {
			ginx.NotFound(c, "order not found")
			return
		}
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, response.FromOrderEntity(order))
}

// List 获取订单列表（创建时间倒序）
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, response.FromOrderEntities(orders))
}

// Steps 获取订单阶段日志
// GET /api/v1/orders/:id/steps
func (h *OrderHandler) Steps(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		ginx.BadRequest(c, "order_id required")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if svorder.IsNotFound(err) {
			ginx.NotFound(c, "order not found")
			return
		}
		ginx.InternalError(c, err.Error())
		return
	}

	resp := response.FromOrderEntity(order)
	ginx.Success(c, resp.Steps)
}
