package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
)

// InMemoryCartRepo simula CartRepository indexado por usuario.
type InMemoryCartRepo struct {
	mu    sync.Mutex
	Carts map[string]*cartDomain.Cart
}

var _ cartDomain.CartRepository = (*InMemoryCartRepo)(nil)

func NewInMemoryCartRepo() *InMemoryCartRepo {
	return &InMemoryCartRepo{Carts: make(map[string]*cartDomain.Cart)}
}

func cloneCart(c *cartDomain.Cart) *cartDomain.Cart {
	cp := *c
	cp.Items = append([]cartDomain.CartItem(nil), c.Items...)
	return &cp
}

func (r *InMemoryCartRepo) GetByUser(ctx context.Context, userID string) (*cartDomain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.Carts[userID]
	if !ok {
		return nil, cartDomain.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (r *InMemoryCartRepo) Save(ctx context.Context, c *cartDomain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Carts[c.UserID] = cloneCart(c)
	return nil
}

func (r *InMemoryCartRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Carts, userID)
	return nil
}

func (r *InMemoryCartRepo) FindUsersWithProduct(ctx context.Context, productID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []string
	for user, c := range r.Carts {
		if c.Quantity(productID) > 0 {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (r *InMemoryCartRepo) RemoveProduct(ctx context.Context, productID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []string
	for user, c := range r.Carts {
		if !c.RemoveItem(productID, c.UpdatedAt) {
			continue
		}
		users = append(users, user)
		if c.IsEmpty() {
			delete(r.Carts, user)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (r *InMemoryCartRepo) ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*cartDomain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*cartDomain.Cart
	for _, c := range r.Carts {
		if c.UpdatedAt.Before(cutoff) {
			out = append(out, cloneCart(c))
		}
	}
	return out, nil
}

func (r *InMemoryCartRepo) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for user, c := range r.Carts {
		if c.UpdatedAt.Before(cutoff) {
			delete(r.Carts, user)
			n++
		}
	}
	return n, nil
}

// FakeCartCatalog resuelve productos para el carrito desde un mapa.
type FakeCartCatalog struct {
	mu       sync.Mutex
	Products map[string]cartDomain.ProductSummary
	// Down simula el catálogo caído (error distinto de no encontrado).
	Down  error
	Calls int
}

var _ cartDomain.ProductCatalog = (*FakeCartCatalog)(nil)

func (c *FakeCartCatalog) GetProduct(ctx context.Context, productID string) (*cartDomain.ProductSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Down != nil {
		return nil, c.Down
	}
	p, ok := c.Products[productID]
	if !ok {
		return nil, cartDomain.ErrProductUnavailable
	}
	return &p, nil
}
