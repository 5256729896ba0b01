package pricing

import "sort"

// Tier is a named service bundle with a base price.
type Tier struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	BasePrice float64  `json:"basePrice"`
	Features  []string `json:"features"`
}

// Addon is an optional module priced independently of tier and jurisdiction.
type Addon struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Catalog holds the static price tables. A Catalog is never modified after
// NewCatalog returns, so a single value can be shared across goroutines.
type Catalog struct {
	tiers         map[string]Tier
	tierOrder     []string
	jurisdictions map[string]float64
	addons        map[string]Addon
	addonOrder    []string
}

// NewCatalog copies the given tables into an immutable Catalog.
func NewCatalog(tiers []Tier, jurisdictions map[string]float64, addons []Addon) *Catalog {
	c := &Catalog{
		tiers:         make(map[string]Tier, len(tiers)),
		jurisdictions: make(map[string]float64, len(jurisdictions)),
		addons:        make(map[string]Addon, len(addons)),
	}
	for _, t := range tiers {
		t.Features = append([]string(nil), t.Features...)
		if _, dup := c.tiers[t.ID]; !dup {
			c.tierOrder = append(c.tierOrder, t.ID)
		}
		c.tiers[t.ID] = t
	}
	for name, factor := range jurisdictions {
		if factor < 0 {
			factor = 0
		}
		c.jurisdictions[name] = factor
	}
	for _, a := range addons {
		if _, dup := c.addons[a.ID]; !dup {
			c.addonOrder = append(c.addonOrder, a.ID)
		}
		c.addons[a.ID] = a
	}
	return c
}

// Tier looks up a tier by id.
func (c *Catalog) Tier(id string) (Tier, bool) {
	t, ok := c.tiers[id]
	return t, ok
}

// Tiers returns tiers in catalogue order.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tierOrder))
	for _, id := range c.tierOrder {
		t := c.tiers[id]
		t.Features = append([]string(nil), t.Features...)
		out = append(out, t)
	}
	return out
}

// Factor returns the multiplier for a jurisdiction, 1.0 when it is not listed.
func (c *Catalog) Factor(jurisdiction string) float64 {
	if f, ok := c.jurisdictions[jurisdiction]; ok {
		return f
	}
	return 1.0
}

// Jurisdictions returns a copy of the factor table.
func (c *Catalog) Jurisdictions() map[string]float64 {
	out := make(map[string]float64, len(c.jurisdictions))
	for k, v := range c.jurisdictions {
		out[k] = v
	}
	return out
}

// JurisdictionNames returns jurisdiction names in alphabetical order.
func (c *Catalog) JurisdictionNames() []string {
	names := make([]string, 0, len(c.jurisdictions))
	for k := range c.jurisdictions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Addon looks up an add-on by id.
func (c *Catalog) Addon(id string) (Addon, bool) {
	a, ok := c.addons[id]
	return a, ok
}

// Addons returns add-ons in catalogue order.
func (c *Catalog) Addons() []Addon {
	out := make([]Addon, 0, len(c.addonOrder))
	for _, id := range c.addonOrder {
		out = append(out, c.addons[id])
	}
	return out
}

// DefaultCatalog is the calculator catalogue offered on the marketing site.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		[]Tier{
			{
				ID:        "starter",
				Name:      "Starter",
				BasePrice: 497,
				Features:  []string{"LLC formation filing", "Registered agent (1 year)", "EIN application", "Digital document vault"},
			},
			{
				ID:        "growth",
				Name:      "Growth",
				BasePrice: 997,
				Features:  []string{"Everything in Starter", "Operating agreement", "Business bank account setup", "Compliance calendar", "Dedicated consultant"},
			},
			{
				ID:        "scale",
				Name:      "Scale",
				BasePrice: 1997,
				Features:  []string{"Everything in Growth", "Tax structure review", "Bookkeeping onboarding", "Quarterly strategy calls", "Priority support"},
			},
		},
		map[string]float64{
			"Delaware":   1.0,
			"Wyoming":    0.9,
			"Nevada":     0.95,
			"Florida":    1.0,
			"Texas":      1.05,
			"New York":   1.2,
			"California": 1.25,
		},
		[]Addon{
			{ID: "tax-optimization", Name: "Tax optimization", Price: 497},
			{ID: "registered-agent", Name: "Registered agent renewal", Price: 299},
			{ID: "ein-filing", Name: "EIN filing", Price: 149},
			{ID: "operating-agreement", Name: "Custom operating agreement", Price: 199},
			{ID: "banking-setup", Name: "Business banking setup", Price: 249},
			{ID: "bookkeeping-setup", Name: "Bookkeeping setup", Price: 399},
			{ID: "trademark-search", Name: "Trademark search", Price: 349},
		},
	)
}
