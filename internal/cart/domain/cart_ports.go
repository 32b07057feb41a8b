package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrItemNotInCart      = errors.New("product not in cart")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInvalidProductID   = errors.New("product id is required")
	ErrProductUnavailable = errors.New("product not found")
)

// AbandonedCartAge es la inactividad tras la que un carrito se considera abandonado.
const AbandonedCartAge = 24 * time.Hour

// CartRepository es el puerto de persistencia de carritos.
type CartRepository interface {
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	// Save inserta o reemplaza el carrito con todas sus líneas.
	Save(ctx context.Context, c *Cart) error
	// DeleteByUser no falla si el usuario no tiene carrito.
	DeleteByUser(ctx context.Context, userID string) error
	FindUsersWithProduct(ctx context.Context, productID string) ([]string, error)
	// RemoveProduct quita el producto de todos los carritos, borra los que
	// quedan vacíos y devuelve los usuarios afectados.
	RemoveProduct(ctx context.Context, productID string) ([]string, error)
	ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*Cart, error)
	DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProductSummary es lo que el carrito muestra de cada producto.
type ProductSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
	Category string  `json:"category,omitempty"`
	Stock    int     `json:"stock"`
}

// ProductCatalog consulta el servicio de productos.
// Un producto inexistente se devuelve como ErrProductUnavailable.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*ProductSummary, error)
}

// CartItemView es una línea del carrito con el producto resuelto.
// Product es nil si el catálogo no respondió.
type CartItemView struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Product   *ProductSummary `json:"product"`
}

// CartView es la respuesta de la API y lo que se guarda en caché.
type CartView struct {
	ID        uuid.UUID      `json:"id"`
	UserID    string         `json:"userId"`
	Items     []CartItemView `json:"items"`
	Total     float64        `json:"total"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// CartCacheKey es la clave de la vista del carrito de un usuario.
func CartCacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
