package pricing

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders amounts for display in a locale.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter builds a USD formatter for locale, falling back to en-US when
// the tag does not parse.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	return &Formatter{printer: message.NewPrinter(tag), unit: currency.USD}
}

// Money formats v with the currency symbol and locale grouping.
func (f *Formatter) Money(v float64) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(v)))
}

// Percent formats a percentage such as 15 as "15%".
func (f *Formatter) Percent(p float64) string {
	return f.printer.Sprintf("%.0f%%", p)
}

// DisplayQuote is the formatted companion of a Quote.
type DisplayQuote struct {
	BasePrice           string `json:"basePrice"`
	AddonPrice          string `json:"addonPrice"`
	TotalBeforeDiscount string `json:"totalBeforeDiscount"`
	DiscountAmount      string `json:"discountAmount"`
	DiscountPercentage  string `json:"discountPercentage"`
	FinalPrice          string `json:"finalPrice"`
}

// Display formats every amount of q.
func (f *Formatter) Display(q Quote) DisplayQuote {
	return DisplayQuote{
		BasePrice:           f.Money(q.BasePrice),
		AddonPrice:          f.Money(q.AddonPrice),
		TotalBeforeDiscount: f.Money(q.TotalBeforeDiscount),
		DiscountAmount:      f.Money(q.DiscountAmount),
		DiscountPercentage:  f.Percent(q.DiscountPercentage),
		FinalPrice:          f.Money(q.FinalPrice),
	}
}
