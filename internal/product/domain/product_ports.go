package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedDomain "github.com/davicafu/hexashop/internal/shared/domain"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductAlreadyExists = errors.New("product already exists")
	ErrInvalidProduct       = errors.New("invalid product: name is required")
	ErrInvalidPrice         = errors.New("invalid product: price must be a non-negative number")
	ErrInvalidStock         = errors.New("invalid product: stock must be non-negative")
)

// --- Repositorio de Products ---
type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	// UpdateFields escribe solo los campos presentes en el patch, en una única
	// operación atómica, y devuelve el producto antes y después del cambio.
	UpdateFields(ctx context.Context, id string, patch ProductPatch, at time.Time) (before, after *Product, err error)
	DeleteByID(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Product, error)
	FindByName(ctx context.Context, name string) (*Product, error)
	List(ctx context.Context, criteria sharedDomain.Criteria, page sharedDomain.Page, sort sharedDomain.Sort) ([]*Product, int64, error)

	// ReduceStock descuenta qty (con suelo 0) una sola vez por pedido.
	ReduceStock(ctx context.Context, productID, orderID string, qty int) (StockChange, error)
	// RestoreStock devuelve qty solo si el pedido se había descontado antes.
	RestoreStock(ctx context.Context, productID, orderID string, qty int) (StockChange, error)
}

// ListQuery son los parámetros de listado tal como llegan del cliente.
type ListQuery struct {
	Page     int
	Limit    int
	Category string
	SortBy   string
	Order    string
	MinPrice *float64
	MaxPrice *float64
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var sortableFields = map[string]bool{"name": true, "price": true, "stock": true, "category": true, "createdAt": true}

// Normalized aplica valores por defecto y límites.
func (q ListQuery) Normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	q.Category = CleanString(q.Category)
	if !sortableFields[q.SortBy] {
		q.SortBy = "name"
	}
	if q.Order != "desc" {
		q.Order = "asc"
	}
	return q
}

func (q ListQuery) Criteria() sharedDomain.Criteria {
	var all sharedDomain.All
	if q.Category != "" {
		all = append(all, CategoryCriteria{Category: q.Category})
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		all = append(all, PriceRangeCriteria{Min: q.MinPrice, Max: q.MaxPrice})
	}
	return all
}

func (q ListQuery) PageSpec() sharedDomain.Page {
	return sharedDomain.Page{Number: q.Page, Size: q.Limit}
}

func (q ListQuery) SortSpec() sharedDomain.Sort {
	return sharedDomain.Sort{Field: q.SortBy, Desc: q.Order == "desc"}
}

// ProductPage es una página de resultados.
type ProductPage struct {
	Items []*Product `json:"items"`
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Pages int        `json:"pages"`
}

// ---------- Claves de caché ----------

const ProductListPattern = "products:*"

func ProductCacheKeyByID(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// ProductListCacheKey usa los parámetros sin normalizar: dos peticiones
// distintas con el mismo resultado pueden ocupar claves distintas.
func ProductListCacheKey(q ListQuery) string {
	category := q.Category
	if category == "" {
		category = "all"
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	order := q.Order
	if order == "" {
		order = "asc"
	}
	min, max := "min", "max"
	if q.MinPrice != nil {
		min = strconv.FormatFloat(*q.MinPrice, 'f', -1, 64)
	}
	if q.MaxPrice != nil {
		max = strconv.FormatFloat(*q.MaxPrice, 'f', -1, 64)
	}
	return fmt.Sprintf("products:%d:%d:%s:%s:%s:%s:%s", q.Page, q.Limit, category, sortBy, order, min, max)
}
