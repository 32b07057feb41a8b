package domain

import (
	"strings"
	"time"

	sharedBus "github.com/davicafu/hexashop/internal/shared/infra/platform/bus"
)

type Variant struct {
	Color       string  `json:"color"`
	Stock       int     `json:"stock"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Category    string    `json:"category,omitempty"`
	Stock       int       `json:"stock"`
	Variants    []Variant `json:"variants,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p *Product) PartitionKey() string {
	return p.ID
}

// --- Métodos de dominio ---

// Normalize limpia los textos que llegan con comillas sobrantes y recalcula
// el stock total cuando hay variantes.
func (p *Product) Normalize() {
	p.Name = CleanString(p.Name)
	p.Description = CleanString(p.Description)
	p.Category = CleanString(p.Category)

	if len(p.Variants) == 0 {
		return
	}
	total := 0
	for i := range p.Variants {
		v := &p.Variants[i]
		v.Color = CleanString(v.Color)
		v.Description = CleanString(v.Description)
		if v.Price <= 0 {
			v.Price = p.Price
		}
		if v.Stock < 0 {
			v.Stock = 0
		}
		total += v.Stock
	}
	p.Stock = total
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidProduct
	}
	if p.Price < 0 {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

// ProductPatch lleva solo los campos que se quieren cambiar.
type ProductPatch struct {
	Name        *string
	Price       *float64
	Description *string
	Image       *string
	Category    *string
	Stock       *int
}

// Validate comprueba solo los campos presentes en el patch.
func (patch ProductPatch) Validate() error {
	if patch.Name != nil && CleanString(*patch.Name) == "" {
		return ErrInvalidProduct
	}
	if patch.Price != nil && *patch.Price < 0 {
		return ErrInvalidPrice
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

// Apply modifica el producto y devuelve el precio y el stock anteriores.
func (p *Product) Apply(patch ProductPatch, now time.Time) (oldPrice float64, oldStock int) {
	oldPrice, oldStock = p.Price, p.Stock
	if patch.Name != nil {
		p.Name = CleanString(*patch.Name)
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = CleanString(*patch.Description)
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
	if patch.Category != nil {
		p.Category = CleanString(*patch.Category)
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	p.UpdatedAt = now
	return oldPrice, oldStock
}

// CleanString quita comillas y comas residuales de los extremos.
func CleanString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimPrefix(s, `'`)
	s = strings.TrimSuffix(s, `,`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, `'`)
	return strings.TrimSpace(s)
}

// StockChange es el resultado de aplicar (o no) un movimiento de stock de un pedido.
type StockChange struct {
	ProductID string
	Name      string
	Stock     int
	// Applied es false cuando el pedido ya se había aplicado (redelivery).
	Applied bool
}

// Verificación estática
var _ sharedBus.Keyer = (*Product)(nil)
