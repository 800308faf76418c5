package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"cgp/internal/app/domains/apimodel/response"
	"cgp/internal/app/domains/services/svorder"
	"cgp/internal/app/pkg/errorx"
	"cgp/internal/app/pkg/ginx"
)

// Process 启动订单处理
// POST /api/v1/orders/:id/process?wait=10
// 立即返回；wait>0 时 Smart Wait 等待终态
func (h *OrderHandler) Process(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		ginx.BadRequest(c, "order_id required")
		return
	}

	if err := h.orderService.StartProcessing(c.Request.Context(), orderID, nil); err != nil {
		switch {
		case svorder.IsNotFound(err):
			ginx.NotFound(c, "order not found")
		case errors.Is(err, errorx.ErrAlreadyRunning), errors.Is(err, errorx.ErrOrderTerminal):
			ginx.Conflict(c, err.Error())
		default:
			ginx.InternalError(c, err.Error())
		}
		return
	}

	if waitStr := c.Query("wait"); waitStr != "" {
		var waitSeconds int
		if _, err := fmt.Sscanf(waitStr, "%d", &waitSeconds); err == nil && waitSeconds > 0 {
			timeout := time.Duration(waitSeconds) * time.Second
			final, err := h.orderService.WaitForResult(c.Request.Context(), orderID, timeout)
			if err == nil {
				ginx.Success(c, response.FromOrderEntity(final))
				return
			}
		}
	}

	pollURL := fmt.Sprintf("/api/v1/orders/%s", orderID)
	ginx.Processing(c, orderID, pollURL)
}

// Cancel 取消订单处理
// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		ginx.BadRequest(c, "order_id required")
		return
	}

	if err := h.orderService.CancelProcessing(c.Request.Context(), orderID); err != nil {
		switch {
		case svorder.IsNotFound(err):
			ginx.NotFound(c, "order not found")
		case errors.Is(err, errorx.ErrOrderTerminal):
			ginx.Conflict(c, err.Error())
		default:
			ginx.BadRequest(c, err.Error())
		}
		return
	}

	ginx.Success(c, gin.H{"order_id": orderID, "cancelled": true})
}
