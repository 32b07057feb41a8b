package http

import "github.com/gin-gonic/gin"

// RegisterProductRoutes registra las rutas HTTP del catálogo.
func RegisterProductRoutes(r gin.IRouter, handler *ProductHandler) {
	products := r.Group("/api/products")
	{
		products.GET("", handler.ListProducts)
		products.GET("/:id", handler.GetProduct)
		products.POST("", handler.CreateProduct)
		products.PUT("/:id", handler.UpdateProduct)
		products.DELETE("/:id", handler.DeleteProduct)
	}
}
