package http

import (
	"github.com/gin-gonic/gin"

	"github.com/davicafu/hexashop/pkg/utils"
)

// RegisterCartRoutes registra las rutas del carrito del usuario identificado.
func RegisterCartRoutes(r gin.IRouter, handler *CartHandler) {
	cart := r.Group("/api/cart", utils.RequireUser())
	{
		cart.POST("/add", handler.AddToCart)
		cart.GET("", handler.GetCart)
		cart.DELETE("", handler.ClearCart)
		cart.DELETE("/items/:productId", handler.RemoveItem)
	}
}
