package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProduct_NormalizeSumsVariantStock(t *testing.T) {
	// Arrange
	p := &Product{
		Name:  `"Camiseta",`,
		Price: 20,
		Stock: 99,
		Variants: []Variant{
			{Color: "'rojo'", Stock: 3},
			{Color: "azul", Stock: 4, Price: 25},
		},
	}

	// Act
	p.Normalize()

	// Assert
	assert.Equal(t, "Camiseta", p.Name)
	assert.Equal(t, 7, p.Stock, "el stock total es la suma de las variantes")
	assert.Equal(t, "rojo", p.Variants[0].Color)
	assert.Equal(t, 20.0, p.Variants[0].Price, "una variante sin precio hereda el del producto")
	assert.Equal(t, 25.0, p.Variants[1].Price)
}

func TestProduct_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Product{Price: 1}).Validate(), ErrInvalidProduct)
	assert.ErrorIs(t, (&Product{Name: "x", Price: -1}).Validate(), ErrInvalidPrice)
	assert.NoError(t, (&Product{Name: "x", Price: 0}).Validate())
}

func TestProductPatch_ValidateOnlyPresentFields(t *testing.T) {
	blank, price, stock := "  ", -0.5, -1

	assert.NoError(t, ProductPatch{}.Validate())
	assert.ErrorIs(t, ProductPatch{Name: &blank}.Validate(), ErrInvalidProduct)
	assert.ErrorIs(t, ProductPatch{Price: &price}.Validate(), ErrInvalidPrice)
	assert.ErrorIs(t, ProductPatch{Stock: &stock}.Validate(), ErrInvalidStock)
}

func TestProduct_ApplyReturnsPreviousValues(t *testing.T) {
	// Arrange
	p := &Product{ID: "p-1", Name: "Taza", Price: 10, Stock: 4, UpdatedAt: time.Now().Add(-time.Hour)}
	before := p.UpdatedAt
	price, stock := 12.5, 0

	// Act
	oldPrice, oldStock := p.Apply(ProductPatch{Price: &price, Stock: &stock}, time.Now())

	// Assert
	assert.Equal(t, 10.0, oldPrice)
	assert.Equal(t, 4, oldStock)
	assert.Equal(t, 12.5, p.Price)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, "Taza", p.Name, "los campos sin patch no cambian")
	assert.True(t, p.UpdatedAt.After(before))
}

func TestProductListCacheKey(t *testing.T) {
	min := 5.0
	assert.Equal(t, "products:1:10:all:name:asc:min:max", ProductListCacheKey(ListQuery{Page: 1, Limit: 10}))
	assert.Equal(t, "products:2:20:shoes:price:desc:5:max",
		ProductListCacheKey(ListQuery{Page: 2, Limit: 20, Category: "shoes", SortBy: "price", Order: "desc", MinPrice: &min}))
	assert.Equal(t, "product:p-9", ProductCacheKeyByID("p-9"))
}

func TestListQuery_NormalizedAndCriteria(t *testing.T) {
	max := 50.0
	q := ListQuery{Page: 0, Limit: 1000, SortBy: "password", Order: "sideways", Category: " tech ", MaxPrice: &max}.Normalized()

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPageSize, q.Limit)
	assert.Equal(t, "name", q.SortBy)
	assert.Equal(t, "asc", q.Order)

	conds := q.Criteria().ToConditions()
	assert.Len(t, conds, 2)
	assert.Equal(t, "category", conds[0].Field)
	assert.Equal(t, "tech", conds[0].Value)
	assert.Equal(t, "price", conds[1].Field)
}
