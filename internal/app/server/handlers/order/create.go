package order

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cgp/internal/app/domains/apimodel/request"
	"cgp/internal/app/domains/apimodel/response"
	"cgp/internal/app/pkg/errorx"
	"cgp/internal/app/pkg/ginx"
)

// Create 创建订单接口
// POST /api/v1/orders?process=1&wait=10
// process=1 时创建后立即启动处理；wait>0 时 Smart Wait 等待终态，
// 超时返回 3001 + 轮询地址
func (h *OrderHandler) Create(c *gin.Context) {
	startProcess := c.Query("process") == "1"

	waitSeconds := 0
	if waitStr := c.Query("wait"); waitStr != "" {
		if w, err := strconv.Atoi(waitStr); err == nil && w > 0 {
			waitSeconds = w
		}
	}

	var req request.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req.UserID, req.ServiceID, req.ToParametersEntity())
	if err != nil {
		if errors.Is(err, errorx.ErrInvalidOrder) {
			ginx.BadRequest(c, err.Error())
			return
		}
		ginx.InternalError(c, err.Error())
		return
	}

	if !startProcess {
		ginx.Created(c, response.FromOrderEntity(order))
		return
	}

	if err := h.orderService.StartProcessing(c.Request.Context(), order.ID, nil); err != nil {
		ginx.InternalError(c, err.Error())
		return
	}

	if waitSeconds > 0 {
		timeout := time.Duration(waitSeconds) * time.Second
		final, err := h.orderService.WaitForResult(c.Request.Context(), order.ID, timeout)
		if err == nil {
			ginx.Success(c, response.FromOrderEntity(final))
			return
		}
		// 超时：订单继续处理，返回轮询地址
	}

	pollURL := fmt.Sprintf("/api/v1/orders/%s", order.ID)
	ginx.Processing(c, order.ID, pollURL)
}
