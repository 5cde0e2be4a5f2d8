package invoices

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/invoicing"
)

// DefaultTaxRate applies to items with no explicit rate, in percent.
var DefaultTaxRate = decimal.NewFromInt(18)

var hundred = decimal.NewFromInt(100)

// Totals sums the computed lines.
type Totals struct {
	Subtotal decimal.Decimal
	TaxTotal decimal.Decimal
	Total    decimal.Decimal
}

// ParseTaxRate reads a configured percentage, falling back to DefaultTaxRate
// for empty, malformed or negative values.
func ParseTaxRate(raw string) decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || rate.IsNegative() {
		return DefaultTaxRate
	}
	return rate
}

// BuildLines maps each order item to exactly one invoice line. Tax is
// exclusive: net = unit price x quantity, tax = net x rate / 100, both
// rounded to cents, gross = net + tax.
func BuildLines(items []models.OrderItem, defaultRate decimal.Decimal) ([]invoicing.Line, Totals) {
	lines := make([]invoicing.Line, 0, len(items))
	var totals Totals
	for _, item := range items {
		rate := defaultRate
		if item.TaxRate != nil {
			rate = *item.TaxRate
		}
		net := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		tax := net.Mul(rate).Div(hundred).Round(2)
		line := invoicing.Line{
			Description: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Round(2),
			TaxRate:     rate,
			Net:         net,
			Tax:         tax,
			Gross:       net.Add(tax),
		}
		lines = append(lines, line)
		totals.Subtotal = totals.Subtotal.Add(net)
		totals.TaxTotal = totals.TaxTotal.Add(tax)
	}
	totals.Total = totals.Subtotal.Add(totals.TaxTotal)
	return lines, totals
}
