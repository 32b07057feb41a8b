package http

import (
	"github.com/gin-gonic/gin"

	"github.com/davicafu/hexashop/pkg/utils"
)

// RegisterOrderRoutes registra las rutas de pedidos; todas requieren identidad.
func RegisterOrderRoutes(r gin.IRouter, handler *OrderHandler) {
	orders := r.Group("/api/orders", utils.RequireUser())
	{
		orders.POST("/create", handler.CreateOrder)
		orders.GET("/my-orders", handler.GetUserOrders)
		orders.PUT("/:id/pay", handler.MarkOrderPaid)
	}
}
