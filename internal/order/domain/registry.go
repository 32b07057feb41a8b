package domain

import "time"

// Topics que publica el servicio de pedidos.
const (
	OrderCreated   = "order.created"
	OrderPaid      = "order.paid"
	OrderCancelled = "order.cancelled"
)

// Topics que consume.
const (
	PaymentSuccess = "payment.success"
	PaymentFailed  = "payment.failed"
	ProductUpdated = "product.updated"
	CartUpdated    = "cart.updated"
)

const ServiceName = "order-service"

// ---------- Payloads publicados ----------

type OrderLine struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type OrderCreatedEvent struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	UserEmail   string      `json:"userEmail"`
	UserName    string      `json:"userName"`
	Items       []OrderLine `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type OrderPaidEvent struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	UserEmail   string      `json:"userEmail,omitempty"`
	UserName    string      `json:"userName,omitempty"`
	PaymentID   string      `json:"paymentId,omitempty"`
	TotalAmount float64     `json:"totalAmount"`
	Status      OrderStatus `json:"status"`
	PaidAt      time.Time   `json:"paidAt"`
	Items       []OrderLine `json:"items"`
}

type OrderCancelledEvent struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	Reason      string      `json:"reason"`
	CancelledAt time.Time   `json:"cancelledAt"`
	Items       []OrderLine `json:"items"`
}

// Los eventos de un mismo pedido van a la misma partición.
func (e OrderCreatedEvent) PartitionKey() string   { return e.OrderID }
func (e OrderPaidEvent) PartitionKey() string      { return e.OrderID }
func (e OrderCancelledEvent) PartitionKey() string { return e.OrderID }

// ---------- Payloads consumidos ----------

type PaymentSuccessEvent struct {
	OrderID   string  `json:"orderId"`
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	UserID    string  `json:"userId"`
}

type PaymentFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
	UserID  string `json:"userId"`
}

type ProductUpdatedEvent struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
}

type CartUpdatedEvent struct {
	UserID string `json:"userId"`
	CartID string `json:"cartId"`
	Action string `json:"action"`
}
