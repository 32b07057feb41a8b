package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type CartItem struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

// Cart es el carrito de un usuario. Solo guarda ids de producto: precio y
// nombre se consultan al catálogo al construir la vista.
type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"userId"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddItem suma la cantidad si el producto ya está en el carrito.
func (c *Cart) AddItem(productID string, qty int, now time.Time) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrInvalidProductID
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}

	c.UpdatedAt = now
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			return nil
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty, AddedAt: now})
	return nil
}

// RemoveItem devuelve false si el producto no estaba en el carrito.
func (c *Cart) RemoveItem(productID string, now time.Time) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = now
			return true
		}
	}
	return false
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Quantity devuelve las unidades de un producto (0 si no está).
func (c *Cart) Quantity(productID string) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}
