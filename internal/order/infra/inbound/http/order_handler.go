package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/hexashop/internal/order/application"
	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
	"github.com/davicafu/hexashop/pkg/utils"
)

type OrderHandler struct {
	service *application.OrderService
	log     *zap.Logger
}

func NewOrderHandler(service *application.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{service: service, log: log}
}

// CreateOrder endpoint POST /api/orders/create
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	o, err := h.service.CreateOrder(c.Request.Context(), customerFrom(c))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, o)
}

// GetUserOrders endpoint GET /api/orders/my-orders
func (h *OrderHandler) GetUserOrders(c *gin.Context) {
	orders, cached, err := h.service.GetUserOrders(c.Request.Context(), utils.CurrentUser(c).ID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendCached(c, orders, cached)
}

// MarkOrderPaid endpoint PUT /api/orders/:id/pay
func (h *OrderHandler) MarkOrderPaid(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid order id")
		return
	}

	o, err := h.service.MarkOrderPaid(c.Request.Context(), customerFrom(c), id)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, o)
}

func (h *OrderHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orderDomain.ErrOrderNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, orderDomain.ErrStaleStatus):
		utils.SendConflict(c, err.Error())
	case errors.Is(err, orderDomain.ErrMissingContact),
		errors.Is(err, orderDomain.ErrMissingUser),
		errors.Is(err, orderDomain.ErrCartEmpty),
		errors.Is(err, orderDomain.ErrNoValidItems),
		errors.Is(err, orderDomain.ErrOrderAlreadyPaid),
		errors.Is(err, orderDomain.ErrInvalidStatusTransition):
		utils.SendBadRequest(c, err.Error())
	default:
		h.log.Error("Order request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, "internal server error")
	}
}

func customerFrom(c *gin.Context) orderDomain.Customer {
	u := utils.CurrentUser(c)
	return orderDomain.Customer{ID: u.ID, Email: u.Email, Name: u.Name}
}
