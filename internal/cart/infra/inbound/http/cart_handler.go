package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/hexashop/internal/cart/application"
	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	"github.com/davicafu/hexashop/pkg/utils"
)

type CartHandler struct {
	service *application.CartService
	log     *zap.Logger
}

func NewCartHandler(service *application.CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{service: service, log: log}
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// AddToCart endpoint POST /api/cart/add
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	view, err := h.service.AddToCart(c.Request.Context(), utils.CurrentUser(c).ID, req.ProductID, req.Quantity)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, view)
}

// GetCart endpoint GET /api/cart
func (h *CartHandler) GetCart(c *gin.Context) {
	view, cached, err := h.service.GetCart(c.Request.Context(), utils.CurrentUser(c).ID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendCached(c, view, cached)
}

// ClearCart endpoint DELETE /api/cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.service.ClearCart(c.Request.Context(), utils.CurrentUser(c).ID); err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"message": "Cart cleared"})
}

// RemoveItem endpoint DELETE /api/cart/items/:productId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	view, err := h.service.RemoveItem(c.Request.Context(), utils.CurrentUser(c).ID, c.Param("productId"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, view)
}

func (h *CartHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cartDomain.ErrCartNotFound),
		errors.Is(err, cartDomain.ErrItemNotInCart),
		errors.Is(err, cartDomain.ErrProductUnavailable):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, cartDomain.ErrInvalidQuantity),
		errors.Is(err, cartDomain.ErrInvalidProductID):
		utils.SendBadRequest(c, err.Error())
	default:
		h.log.Error("Cart request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, "internal server error")
	}
}
