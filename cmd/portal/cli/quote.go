package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/formwell/formwell-portal/internal/pricing"
)

// QuoteOptions defines available flags for the quote command.
type QuoteOptions struct {
	TierID       string
	Jurisdiction string
	AddonIDs     []string
	Locale       string
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// QuoteSummary is the JSON document printed by quote --json.
type QuoteSummary struct {
	TierID       string               `json:"tierId"`
	Jurisdiction string               `json:"jurisdiction"`
	AddonIDs     []string             `json:"addonIds"`
	Quote        pricing.Quote        `json:"quote"`
	Display      pricing.DisplayQuote `json:"display"`
}

// QuoteCLI prices formation packages offline against a catalogue.
type QuoteCLI struct {
	engine *pricing.Engine
}

// NewQuoteCLI constructs the helper. A nil engine uses the default catalogue.
func NewQuoteCLI(engine *pricing.Engine) *QuoteCLI {
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	return &QuoteCLI{engine: engine}
}

// QuoteCommand computes a quote and prints it. It returns the process exit code.
func (c *QuoteCLI) QuoteCommand(opts QuoteOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	tierID := strings.TrimSpace(opts.TierID)
	if tierID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "quote: --tier is required")
		return 1
	}
	addons := make([]string, 0, len(opts.AddonIDs))
	for _, id := range opts.AddonIDs {
		if id = strings.TrimSpace(id); id != "" {
			addons = append(addons, id)
		}
	}

	q, err := c.engine.FinalQuote(tierID, opts.Jurisdiction, addons)
	if err != nil {
		if errors.Is(err, pricing.ErrTierNotFound) {
			_, _ = fmt.Fprintf(opts.Stderr, "quote: unknown tier %q (available: %s)\n", tierID, strings.Join(c.tierIDs(), ", "))
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stderr, "quote: %v\n", err)
		return 1
	}
	formatter := pricing.NewFormatter(opts.Locale)

	if opts.JSONOutput {
		summary := QuoteSummary{
			TierID:       tierID,
			Jurisdiction: opts.Jurisdiction,
			AddonIDs:     addons,
			Quote:        q,
			Display:      formatter.Display(q),
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "quote: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	c.renderHuman(opts.Stdout, formatter, tierID, opts.Jurisdiction, addons, q)
	return 0
}

func (c *QuoteCLI) tierIDs() []string {
	tiers := c.engine.Catalog().Tiers()
	ids := make([]string, len(tiers))
	for i, t := range tiers {
		ids[i] = t.ID
	}
	return ids
}

func (c *QuoteCLI) renderHuman(out io.Writer, f *pricing.Formatter, tierID, jurisdiction string, addons []string, q pricing.Quote) {
	catalog := c.engine.Catalog()
	tierName := tierID
	if tier, ok := catalog.Tier(tierID); ok {
		tierName = tier.Name
	}
	factor := catalog.Factor(jurisdiction)
	if jurisdiction == "" {
		jurisdiction = "(none)"
	}
	_, _ = fmt.Fprintf(out, "Quote for %s in %s (factor %.2f)\n", tierName, jurisdiction, factor)
	_, _ = fmt.Fprintf(out, "  Base price:      %s\n", f.Money(q.BasePrice))
	for _, id := range addons {
		addon, ok := catalog.Addon(id)
		if !ok {
			_, _ = fmt.Fprintf(out, "  + %-28s not offered, ignored\n", id)
			continue
		}
		_, _ = fmt.Fprintf(out, "  + %-28s %s\n", addon.Name, f.Money(addon.Price))
	}
	_, _ = fmt.Fprintf(out, "  Subtotal:        %s\n", f.Money(q.TotalBeforeDiscount))
	if q.DiscountPercentage > 0 {
		_, _ = fmt.Fprintf(out, "  Volume discount: -%s (%s)\n", f.Money(q.DiscountAmount), f.Percent(q.DiscountPercentage))
	}
	_, _ = fmt.Fprintf(out, "  Total:           %s\n", f.Money(q.FinalPrice))
}
