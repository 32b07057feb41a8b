package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderAlreadyPaid        = errors.New("order already paid")
	ErrOrderAlreadyCancelled   = errors.New("order already cancelled")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrStaleStatus             = errors.New("order status changed concurrently")
	ErrCartEmpty               = errors.New("cart is empty")
	ErrNoValidItems            = errors.New("no valid products in cart")
	ErrMissingUser             = errors.New("user id is required")
	ErrMissingContact          = errors.New("user email and name are required")
)

// StaleOrderAge es la antigüedad a partir de la cual un pedido Pending se cancela.
const StaleOrderAge = 24 * time.Hour

// OrderRepository es el puerto de persistencia de pedidos.
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	// Transition persiste el nuevo estado de o solo si en el store sigue en from.
	// Devuelve ErrStaleStatus si otro proceso ya lo movió.
	Transition(ctx context.Context, o *Order, from OrderStatus) error
	// CancelPendingBefore cancela en bloque los Pending creados antes de cutoff
	// y devuelve los pedidos afectados.
	CancelPendingBefore(ctx context.Context, cutoff, at time.Time, reason string) ([]*Order, error)
}

// Customer es la identidad del llamante que llega en las cabeceras.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// CartLine es lo que el pedido necesita del carrito.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CartGateway habla con el servicio de carrito.
type CartGateway interface {
	GetCart(ctx context.Context, customer Customer) ([]CartLine, error)
	ClearCart(ctx context.Context, customer Customer) error
}

// ProductInfo es la foto del producto que se copia al pedido.
type ProductInfo struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// ProductCatalog consulta el servicio de productos.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*ProductInfo, error)
}

// OrdersCacheKey es la clave del listado de pedidos de un usuario.
func OrdersCacheKey(userID string) string {
	return fmt.Sprintf("orders:%s", userID)
}
