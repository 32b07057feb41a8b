package domain

// ---------------- Operadores ----------------

type Operator string

const (
	OpEq    Operator = "="
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpILike Operator = "ILIKE"
)

// ---------------- Criterion ----------------

// Criterion describe una condición neutral de filtrado
type Criterion struct {
	Field string
	Op    Operator
	Value interface{}
}

// Criteria permite transformar filtros a condiciones neutrales
type Criteria interface {
	ToConditions() []Criterion
}

// All agrupa varios criterios; todas las condiciones deben cumplirse.
type All []Criteria

func (a All) ToConditions() []Criterion {
	var all []Criterion
	for _, crit := range a {
		if crit == nil {
			continue
		}
		all = append(all, crit.ToConditions()...)
	}
	return all
}

// ---------------- Paginación / orden ----------------

// Page es una paginación clásica basada en número de página (1..n).
type Page struct {
	Number int
	Size   int
}

// Offset calcula el desplazamiento para la página.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Sort indica campo y dirección.
type Sort struct {
	Field string
	Desc  bool
}
