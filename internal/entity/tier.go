package entity

import (
	"time"
)

// openSpan stands in for an unbounded age edge when comparing tier spans.
// Matching never uses it; an open bound matches every age on that side.
const openSpan = 1 << 20

type TicketTier struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	PriceCents int64     `json:"price_cents" db:"price_cents"`
	AgeMin     *int      `json:"age_min,omitempty" db:"age_min"`
	AgeMax     *int      `json:"age_max,omitempty" db:"age_max"`
	Inventory  *int      `json:"inventory,omitempty" db:"inventory"`
	Position   int       `json:"position" db:"position"`
	Active     bool      `json:"active" db:"active"`
	Apparel    bool      `json:"apparel" db:"apparel"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// MatchesAge reports whether age falls inside the tier's bounds.
// An unset bound is open on that side.
func (t *TicketTier) MatchesAge(age int) bool {
	if t.AgeMin != nil && age < *t.AgeMin {
		return false
	}
	if t.AgeMax != nil && age > *t.AgeMax {
		return false
	}
	return true
}

// AgeSpan returns the width of the tier's age window for tie-breaking.
// Open bounds count as effectively infinite.
func (t *TicketTier) AgeSpan() int {
	min := -openSpan
	if t.AgeMin != nil {
		min = *t.AgeMin
	}
	max := openSpan
	if t.AgeMax != nil {
		max = *t.AgeMax
	}
	return max - min
}

// HasInventoryLimit reports whether the tier tracks a finite stock count.
func (t *TicketTier) HasInventoryLimit() bool {
	return t.Inventory != nil
}
