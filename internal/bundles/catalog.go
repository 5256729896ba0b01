// Package bundles is the fixed-bundle checkout catalogue. Each plan has a flat
// price with its profit and margin figures; there is no jurisdiction factor and
// no volume discount. It shares nothing with the calculator in package pricing.
package bundles

import (
	"errors"
	"fmt"
)

// ErrPlanNotFound is returned for plan ids missing from the catalogue.
var ErrPlanNotFound = errors.New("bundles: plan not found")

// Plan is one fixed bundle.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Profit   float64  `json:"profit"`
	Margin   float64  `json:"margin"`
	Features []string `json:"features"`
}

// Summary totals a checkout selection.
type Summary struct {
	PlanIDs []string `json:"planIds"`
	Price   float64  `json:"price"`
	Profit  float64  `json:"profit"`
	Margin  float64  `json:"margin"`
}

// Catalog is an immutable set of plans.
type Catalog struct {
	plans map[string]Plan
	order []string
}

// NewCatalog builds a Catalog from plans, later duplicates replacing earlier ones.
func NewCatalog(plans []Plan) *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		if _, dup := c.plans[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.plans[p.ID] = p
	}
	return c
}

// Plans lists plans in catalogue order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		p := c.plans[id]
		p.Features = append([]string(nil), p.Features...)
		out = append(out, p)
	}
	return out
}

// Plan looks up a plan.
func (c *Catalog) Plan(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	p.Features = append([]string(nil), p.Features...)
	return p, nil
}

// Total sums price and profit over the selected plans. Every id must exist.
// Margin is profit as a percentage of price.
func (c *Catalog) Total(planIDs []string) (Summary, error) {
	s := Summary{PlanIDs: append([]string{}, planIDs...)}
	for _, id := range planIDs {
		p, ok := c.plans[id]
		if !ok {
			return Summary{}, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
		}
		s.Price += p.Price
		s.Profit += p.Profit
	}
	if s.Price > 0 {
		s.Margin = s.Profit / s.Price * 100
	}
	return s, nil
}

// DefaultCatalog is the checkout catalogue.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Plan{
		{ID: "basic", Name: "Basic Formation", Price: 299, Profit: 189, Margin: 63.2, Features: []string{"State filing", "Articles of organization"}},
		{ID: "standard", Name: "Standard Formation", Price: 599, Profit: 419, Margin: 69.9, Features: []string{"State filing", "EIN", "Operating agreement"}},
		{ID: "premium", Name: "Premium Formation", Price: 999, Profit: 729, Margin: 73.0, Features: []string{"Standard features", "Registered agent", "Banking setup"}},
		{ID: "professional", Name: "Professional Suite", Price: 1999, Profit: 1499, Margin: 75.0, Features: []string{"Premium features", "Tax consultation", "Bookkeeping onboarding"}},
		{ID: "enterprise", Name: "Enterprise Suite", Price: 4999, Profit: 3899, Margin: 78.0, Features: []string{"Professional features", "Multi-state compliance", "Dedicated consultant"}},
	})
}
