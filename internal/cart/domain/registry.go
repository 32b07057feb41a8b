package domain

import "time"

// Topics que publica el servicio de carrito.
const (
	CartItemAdded   = "cart.item.added"
	CartItemRemoved = "cart.item.removed"
	CartCleared     = "cart.cleared"
	CartAbandoned   = "cart.abandoned"
)

// Topics que consume.
const (
	ProductUpdated    = "product.updated"
	ProductDeleted    = "product.deleted"
	ProductOutOfStock = "product.out.of.stock"
	PriceChanged      = "product.price.changed"
)

const ServiceName = "cart-service"

// ---------- Payloads publicados ----------

type ItemAddedEvent struct {
	CartID      string    `json:"cartId"`
	UserID      string    `json:"userId"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	AddedAt     time.Time `json:"addedAt"`
}

type ItemRemovedEvent struct {
	CartID    string    `json:"cartId"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	RemovedAt time.Time `json:"removedAt"`
}

type CartClearedEvent struct {
	CartID    string    `json:"cartId"`
	UserID    string    `json:"userId"`
	ClearedAt time.Time `json:"clearedAt"`
}

type CartAbandonedEvent struct {
	CartID      string    `json:"cartId"`
	UserID      string    `json:"userId"`
	ItemsCount  int       `json:"itemsCount"`
	LastUpdated time.Time `json:"lastUpdated"`
	AbandonedAt time.Time `json:"abandonedAt"`
}

// Todos los eventos de un usuario van a la misma partición.
func (e ItemAddedEvent) PartitionKey() string     { return e.UserID }
func (e ItemRemovedEvent) PartitionKey() string   { return e.UserID }
func (e CartClearedEvent) PartitionKey() string   { return e.UserID }
func (e CartAbandonedEvent) PartitionKey() string { return e.UserID }

// ---------- Payloads consumidos ----------

type ProductUpdatedEvent struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
}

type ProductDeletedEvent struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
}

type OutOfStockEvent struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
}

type PriceChangedEvent struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	OldPrice    float64 `json:"oldPrice"`
	NewPrice    float64 `json:"newPrice"`
}
