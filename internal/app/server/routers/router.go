package routers

import (
	"github.com/gin-gonic/gin"

	"cgp/internal/app/server/handlers/order"
	"cgp/internal/app/server/middlewares"
)

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(orderHandler *order.OrderHandler) *gin.Engine {
	r := gin.Default()

	r.Use(middlewares.CORS())
	r.Use(middlewares.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "cgp",
			"message": "Service is running",
		})
	})

	v1 := r.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", orderHandler.Create)
			orders.GET("", orderHandler.List)
			orders.GET("/:id", orderHandler.Get)
			orders.GET("/:id/steps", orderHandler.Steps)
			orders.POST("/:id/process", orderHandler.Process)
			orders.POST("/:id/cancel", orderHandler.Cancel)
		}
	}

	return r
}
