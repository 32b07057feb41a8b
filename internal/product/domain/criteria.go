package domain

import (
	shared "github.com/davicafu/hexashop/internal/shared/domain"
)

// --- Criterios específicos para el dominio Product ---

// CategoryCriteria busca por categoría exacta sin distinguir mayúsculas.
type CategoryCriteria struct {
	Category string
}

func (c CategoryCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		// ILIKE sin comodines equivale a igualdad insensible a mayúsculas
		{Field: "category", Op: shared.OpILike, Value: c.Category},
	}
}

// -----------------------------------------------------------

// PriceRangeCriteria filtra por precio. Ambos extremos son opcionales.
type PriceRangeCriteria struct {
	Min *float64
	Max *float64
}

func (c PriceRangeCriteria) ToConditions() []shared.Criterion {
	var conds []shared.Criterion
	if c.Min != nil {
		conds = append(conds, shared.Criterion{Field: "price", Op: shared.OpGte, Value: *c.Min})
	}
	if c.Max != nil {
		conds = append(conds, shared.Criterion{Field: "price", Op: shared.OpLte, Value: *c.Max})
	}
	return conds
}

// -----------------------------------------------------------

// NameLikeCriteria busca productos cuyo nombre contenga un texto.
type NameLikeCriteria struct {
	Name string
}

func (c NameLikeCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: "name", Op: shared.OpILike, Value: "%" + c.Name + "%"},
	}
}
