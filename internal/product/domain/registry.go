package domain

import "time"

// Topics que publica el servicio de productos.
const (
	ProductCreated    = "product.created"
	ProductUpdated    = "product.updated"
	ProductDeleted    = "product.deleted"
	ProductOutOfStock = "product.out.of.stock"
	PriceChanged      = "product.price.changed"
)

// Topics que consume.
const (
	OrderCreated   = "order.created"
	OrderCancelled = "order.cancelled"
)

const ServiceName = "product-service"

// ---------- Payloads publicados ----------

type ProductCreatedEvent struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Category  string    `json:"category"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProductUpdatedEvent struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Category  string    `json:"category"`
	Stock     int       `json:"stock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ProductDeletedEvent struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	DeletedAt time.Time `json:"deletedAt"`
}

type PriceChangedEvent struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	OldPrice    float64 `json:"oldPrice"`
	NewPrice    float64 `json:"newPrice"`
}

type OutOfStockEvent struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	OrderID     string `json:"orderId,omitempty"`
}

// ---------- Payloads consumidos ----------

// OrderLine es la vista que este servicio necesita de una línea de pedido.
type OrderLine struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price,omitempty"`
}

type OrderCreatedEvent struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Items   []OrderLine `json:"items"`
}

type OrderCancelledEvent struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Reason  string      `json:"reason"`
	Items   []OrderLine `json:"items"`
}
