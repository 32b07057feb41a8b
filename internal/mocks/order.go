package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
)

// InMemoryOrderRepo simula OrderRepository con la misma guarda de estado
// que el UPDATE ... WHERE status = $from del repositorio real.
type InMemoryOrderRepo struct {
	mu     sync.Mutex
	Orders map[uuid.UUID]*orderDomain.Order

	// Transitions cuenta las transiciones persistidas.
	Transitions int
}

var _ orderDomain.OrderRepository = (*InMemoryOrderRepo)(nil)

func NewInMemoryOrderRepo() *InMemoryOrderRepo {
	return &InMemoryOrderRepo{Orders: make(map[uuid.UUID]*orderDomain.Order)}
}

func cloneOrder(o *orderDomain.Order) *orderDomain.Order {
	cp := *o
	cp.Items = append([]orderDomain.OrderItem(nil), o.Items...)
	return &cp
}

func (r *InMemoryOrderRepo) Create(ctx context.Context, o *orderDomain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Orders[o.ID]; ok {
		return errors.New("duplicate order id")
	}
	r.Orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *InMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.Orders[id]
	if !ok {
		return nil, orderDomain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *InMemoryOrderRepo) ListByUser(ctx context.Context, userID string) ([]*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*orderDomain.Order
	for _, o := range r.Orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryOrderRepo) Transition(ctx context.Context, o *orderDomain.Order, from orderDomain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.Orders[o.ID]
	if !ok {
		return orderDomain.ErrOrderNotFound
	}
	if stored.Status != from {
		return orderDomain.ErrStaleStatus
	}
	r.Orders[o.ID] = cloneOrder(o)
	r.Transitions++
	return nil
}

func (r *InMemoryOrderRepo) CancelPendingBefore(ctx context.Context, cutoff, at time.Time, reason string) ([]*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*orderDomain.Order
	for _, o := range r.Orders {
		if o.Status != orderDomain.StatusPending || !o.CreatedAt.Before(cutoff) {
			continue
		}
		cancelledAt := at
		o.Status = orderDomain.StatusCancelled
		o.CancelledAt = &cancelledAt
		o.CancellationReason = reason
		o.UpdatedAt = at
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

// FakeCartGateway devuelve el carrito configurado y registra los vaciados.
type FakeCartGateway struct {
	mu       sync.Mutex
	Lines    map[string][]orderDomain.CartLine
	Cleared  []string
	GetErr   error
	ClearErr error
}

var _ orderDomain.CartGateway = (*FakeCartGateway)(nil)

func NewFakeCartGateway() *FakeCartGateway {
	return &FakeCartGateway{Lines: make(map[string][]orderDomain.CartLine)}
}

func (g *FakeCartGateway) GetCart(ctx context.Context, customer orderDomain.Customer) ([]orderDomain.CartLine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.GetErr != nil {
		return nil, g.GetErr
	}
	return append([]orderDomain.CartLine(nil), g.Lines[customer.ID]...), nil
}

func (g *FakeCartGateway) ClearCart(ctx context.Context, customer orderDomain.Customer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Cleared = append(g.Cleared, customer.ID)
	if g.ClearErr != nil {
		return g.ClearErr
	}
	delete(g.Lines, customer.ID)
	return nil
}

// FakeCatalog resuelve productos desde un mapa; los ausentes dan error.
type FakeCatalog struct {
	Products map[string]orderDomain.ProductInfo
}

var _ orderDomain.ProductCatalog = (*FakeCatalog)(nil)

var ErrRemoteProductMissing = errors.New("product service: not found")

func (c *FakeCatalog) GetProduct(ctx context.Context, productID string) (*orderDomain.ProductInfo, error) {
	p, ok := c.Products[productID]
	if !ok {
		return nil, ErrRemoteProductMissing
	}
	return &p, nil
}
