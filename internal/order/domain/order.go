package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusPaid       OrderStatus = "Paid"
	StatusProcessing OrderStatus = "Processing"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// Valid indica si el estado pertenece al ciclo de vida conocido.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// OrderItem guarda una foto del producto en el momento de la compra.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	Quantity  int     `json:"quantity"`
}

func (i OrderItem) Subtotal() float64 {
	return i.Price * float64(i.Quantity)
}

type Order struct {
	ID                 uuid.UUID   `json:"id"`
	UserID             string      `json:"userId"`
	Items              []OrderItem `json:"items"`
	TotalAmount        float64     `json:"totalAmount"`
	Status             OrderStatus `json:"status"`
	PaymentID          string      `json:"paymentId,omitempty"`
	CancellationReason string      `json:"cancellationReason,omitempty"`
	PaidAt             *time.Time  `json:"paidAt,omitempty"`
	CancelledAt        *time.Time  `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// NewOrder crea un pedido Pending a partir de las líneas válidas.
func NewOrder(userID string, items []OrderItem, now time.Time) (*Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	var valid []OrderItem
	var total float64
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price < 0 {
			continue
		}
		valid = append(valid, it)
		total += it.Subtotal()
	}
	if len(valid) == 0 {
		return nil, ErrNoValidItems
	}

	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		Items:       valid,
		TotalAmount: total,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkPaid solo avanza desde Pending.
func (o *Order) MarkPaid(paymentID string, now time.Time) error {
	switch o.Status {
	case StatusPending:
	case StatusPaid:
		return ErrOrderAlreadyPaid
	default:
		return ErrInvalidStatusTransition
	}
	o.Status = StatusPaid
	o.PaymentID = paymentID
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel solo aplica a pedidos Pending; un pedido pagado no se cancela por esta vía.
func (o *Order) Cancel(reason string, now time.Time) error {
	switch o.Status {
	case StatusPending:
	case StatusCancelled:
		return ErrOrderAlreadyCancelled
	default:
		return ErrInvalidStatusTransition
	}
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Lines convierte los items al formato de los eventos de pedido.
func (o *Order) Lines() []OrderLine {
	lines := make([]OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, OrderLine{
			ProductID:   it.ProductID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return lines
}
