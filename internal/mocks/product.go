package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	sharedDomain "github.com/davicafu/hexashop/internal/shared/domain"
)

// InMemoryProductRepo simula ProductRepository, incluidas las marcas de
// pedidos aplicados que usa el repositorio real para ser idempotente.
type InMemoryProductRepo struct {
	mu       sync.Mutex
	Products map[string]*productDomain.Product
	applied  map[string]map[string]bool

	// Err, si no es nil, lo devuelven las escrituras de stock.
	Err error
}

var _ productDomain.ProductRepository = (*InMemoryProductRepo)(nil)

func NewInMemoryProductRepo() *InMemoryProductRepo {
	return &InMemoryProductRepo{
		Products: make(map[string]*productDomain.Product),
		applied:  make(map[string]map[string]bool),
	}
}

func clone(p *productDomain.Product) *productDomain.Product {
	cp := *p
	cp.Variants = append([]productDomain.Variant(nil), p.Variants...)
	return &cp
}

func (r *InMemoryProductRepo) Create(ctx context.Context, p *productDomain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Products[p.ID]; ok {
		return productDomain.ErrProductAlreadyExists
	}
	r.Products[p.ID] = clone(p)
	return nil
}

func (r *InMemoryProductRepo) UpdateFields(ctx context.Context, id string, patch productDomain.ProductPatch, at time.Time) (*productDomain.Product, *productDomain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, nil, r.Err
	}
	p, ok := r.Products[id]
	if !ok {
		return nil, nil, productDomain.ErrProductNotFound
	}
	before := clone(p)
	p.Apply(patch, at)
	return before, clone(p), nil
}

func (r *InMemoryProductRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Products[id]; !ok {
		return productDomain.ErrProductNotFound
	}
	delete(r.Products, id)
	delete(r.applied, id)
	return nil
}

func (r *InMemoryProductRepo) GetByID(ctx context.Context, id string) (*productDomain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Products[id]
	if !ok {
		return nil, productDomain.ErrProductNotFound
	}
	return clone(p), nil
}

func (r *InMemoryProductRepo) FindByName(ctx context.Context, name string) (*productDomain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.Products {
		if p.Name == name {
			return clone(p), nil
		}
	}
	return nil, productDomain.ErrProductNotFound
}

func (r *InMemoryProductRepo) List(ctx context.Context, criteria sharedDomain.Criteria, page sharedDomain.Page, s sharedDomain.Sort) ([]*productDomain.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conds []sharedDomain.Criterion
	if criteria != nil {
		conds = criteria.ToConditions()
	}

	var list []*productDomain.Product
	for _, p := range r.Products {
		if matchProduct(p, conds) {
			list = append(list, clone(p))
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return compareProducts(list[i], list[j], s.Field, s.Desc)
	})

	total := int64(len(list))
	start := page.Offset()
	if start > len(list) {
		return []*productDomain.Product{}, total, nil
	}
	end := len(list)
	if page.Size > 0 && start+page.Size < end {
		end = start + page.Size
	}
	return list[start:end], total, nil
}

func (r *InMemoryProductRepo) ReduceStock(ctx context.Context, productID, orderID string, qty int) (productDomain.StockChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return productDomain.StockChange{}, r.Err
	}
	p, ok := r.Products[productID]
	if !ok {
		return productDomain.StockChange{}, productDomain.ErrProductNotFound
	}
	change := productDomain.StockChange{ProductID: p.ID, Name: p.Name, Stock: p.Stock}
	if r.applied[productID][orderID] {
		return change, nil
	}

	p.Stock -= qty
	if p.Stock < 0 {
		p.Stock = 0
	}
	if r.applied[productID] == nil {
		r.applied[productID] = make(map[string]bool)
	}
	r.applied[productID][orderID] = true

	change.Stock, change.Applied = p.Stock, true
	return change, nil
}

func (r *InMemoryProductRepo) RestoreStock(ctx context.Context, productID, orderID string, qty int) (productDomain.StockChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return productDomain.StockChange{}, r.Err
	}
	p, ok := r.Products[productID]
	if !ok {
		return productDomain.StockChange{}, productDomain.ErrProductNotFound
	}
	change := productDomain.StockChange{ProductID: p.ID, Name: p.Name, Stock: p.Stock}
	if !r.applied[productID][orderID] {
		return change, nil
	}

	p.Stock += qty
	delete(r.applied[productID], orderID)

	change.Stock, change.Applied = p.Stock, true
	return change, nil
}

// --- Lógica de filtrado y ordenamiento del mock ---

func matchProduct(p *productDomain.Product, conds []sharedDomain.Criterion) bool {
	for _, cond := range conds {
		var match bool
		switch cond.Field {
		case "category", "name":
			val := p.Category
			if cond.Field == "name" {
				val = p.Name
			}
			pattern := strings.ToLower(fmt.Sprintf("%v", cond.Value))
			if strings.Contains(pattern, "%") {
				match = strings.Contains(strings.ToLower(val), strings.Trim(pattern, "%"))
			} else {
				match = strings.ToLower(val) == pattern
			}
		case "price":
			limit, _ := cond.Value.(float64)
			switch cond.Op {
			case sharedDomain.OpGte:
				match = p.Price >= limit
			case sharedDomain.OpLte:
				match = p.Price <= limit
			case sharedDomain.OpGt:
				match = p.Price > limit
			case sharedDomain.OpLt:
				match = p.Price < limit
			default:
				match = p.Price == limit
			}
		}
		if !match {
			return false
		}
	}
	return true
}

func compareProducts(a, b *productDomain.Product, field string, desc bool) bool {
	var result bool
	switch field {
	case "price":
		result = a.Price < b.Price
	case "stock":
		result = a.Stock < b.Stock
	case "category":
		result = strings.ToLower(a.Category) < strings.ToLower(b.Category)
	case "createdAt":
		result = a.CreatedAt.Before(b.CreatedAt)
	default:
		result = strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}
	if desc {
		return !result
	}
	return result
}
