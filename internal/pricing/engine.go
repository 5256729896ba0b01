// Package pricing computes calculator quotes: tier base price adjusted by a
// jurisdiction factor, plus add-ons, minus a volume discount.
//
// Amounts are decimal currency units. Conversion to minor units happens at the
// payment boundary, not here. Rounding to whole units is applied to the base
// price and to the final price only.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrTierNotFound is returned when a quote names a tier absent from the catalogue.
var ErrTierNotFound = errors.New("pricing: tier not found")

// Discount is the volume discount applied to a total.
type Discount struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Quote is the breakdown of one price computation.
type Quote struct {
	BasePrice           float64 `json:"basePrice"`
	AddonPrice          float64 `json:"addonPrice"`
	TotalBeforeDiscount float64 `json:"totalBeforeDiscount"`
	DiscountAmount      float64 `json:"discountAmount"`
	DiscountPercentage  float64 `json:"discountPercentage"`
	FinalPrice          float64 `json:"finalPrice"`
}

type breakpoint struct {
	min        float64
	percentage float64
}

// Evaluated top-down, first match wins.
var volumeBreakpoints = []breakpoint{
	{min: 800, percentage: 20},
	{min: 600, percentage: 15},
	{min: 400, percentage: 10},
}

// Engine prices quotes against a Catalog.
type Engine struct {
	catalog *Catalog
}

// NewEngine returns an Engine over catalog, or over DefaultCatalog when nil.
func NewEngine(catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{catalog: catalog}
}

// Catalog exposes the engine's price tables.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// BasePrice is the tier price scaled by the jurisdiction factor, rounded to a whole unit.
func (e *Engine) BasePrice(tierID, jurisdiction string) (float64, error) {
	tier, ok := e.catalog.Tier(tierID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrTierNotFound, tierID)
	}
	return roundHalfUp(tier.BasePrice * e.catalog.Factor(jurisdiction)), nil
}

// AddonTotal sums the add-on prices. Unknown ids add nothing; repeated ids are
// each counted.
func (e *Engine) AddonTotal(addonIDs []string) float64 {
	var total float64
	for _, id := range addonIDs {
		if a, ok := e.catalog.Addon(id); ok {
			total += a.Price
		}
	}
	return total
}

// TotalBeforeDiscount is BasePrice plus AddonTotal.
func (e *Engine) TotalBeforeDiscount(tierID, jurisdiction string, addonIDs []string) (float64, error) {
	base, err := e.BasePrice(tierID, jurisdiction)
	if err != nil {
		return 0, err
	}
	return base + e.AddonTotal(addonIDs), nil
}

// VolumeDiscount returns the discount tier reached by total.
func VolumeDiscount(total float64) Discount {
	for _, bp := range volumeBreakpoints {
		if total >= bp.min {
			return Discount{Amount: total * bp.percentage / 100, Percentage: bp.percentage}
		}
	}
	return Discount{}
}

// FinalQuote composes the full breakdown for a tier, jurisdiction and add-on selection.
func (e *Engine) FinalQuote(tierID, jurisdiction string, addonIDs []string) (Quote, error) {
	base, err := e.BasePrice(tierID, jurisdiction)
	if err != nil {
		return Quote{}, err
	}
	addons := e.AddonTotal(addonIDs)
	total := base + addons
	discount := VolumeDiscount(total)
	return Quote{
		BasePrice:           base,
		AddonPrice:          addons,
		TotalBeforeDiscount: total,
		DiscountAmount:      discount.Amount,
		DiscountPercentage:  discount.Percentage,
		FinalPrice:          roundHalfUp(total - discount.Amount),
	}, nil
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
