package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/acp-checkout/internal/catalog"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Total types, in the order they appear on a session.
const (
	TotalItemsBaseAmount = "items_base_amount"
	TotalSubtotal        = "subtotal"
	TotalTax             = "tax"
	TotalShipping        = "shipping"
	TotalTotal           = "total"
)

var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
)

// MaxQuantity caps a single line. MaxAmount caps every line total and the
// cart total, which keeps the int64 sums in ComputeTotals from wrapping.
const (
	MaxQuantity       = 10000
	MaxAmount   Money = 1_000_000_000_000_000
)

// DefaultTaxRate is applied when a Calculator has no explicit rate.
var DefaultTaxRate = decimal.NewFromFloat(0.10)

// Item is one cart entry as declared by the buyer.
type Item struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1,max=10000"`
}

// LineItem is a priced cart entry.
type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	BaseAmount Money  `json:"base_amount"`
	Discount   Money  `json:"discount"`
	Subtotal   Money  `json:"subtotal"`
	Tax        Money  `json:"tax"`
	Total      Money  `json:"total"`
}

// Total is a named session-level aggregate.
type Total struct {
	Type        string `json:"type"`
	DisplayText string `json:"display_text"`
	Amount      Money  `json:"amount"`
}

// Calculator prices carts at a flat tax rate.
type Calculator struct {
	TaxRate decimal.Decimal
}

// NewCalculator returns a Calculator using rate, or DefaultTaxRate when rate is zero.
func NewCalculator(rate decimal.Decimal) Calculator {
	if rate.IsZero() {
		rate = DefaultTaxRate
	}
	return Calculator{TaxRate: rate}
}

// Tax rounds subtotal × rate half away from zero.
func (c Calculator) Tax(subtotal Money) Money {
	return c.tax(subtotal).IntPart()
}

func (c Calculator) tax(subtotal Money) decimal.Decimal {
	rate := c.TaxRate
	if rate.IsZero() {
		rate = DefaultTaxRate
	}
	return decimal.NewFromInt(subtotal).Mul(rate).Round(0)
}

// ComputeLineItems prices items in order. Every item is resolved before any
// line item is built, so a single failure yields no output at all.
func (c Calculator) ComputeLineItems(ctx context.Context, items []Item, lookup catalog.Lookup, newID func() string) ([]LineItem, error) {
	if lookup == nil {
		return nil, errors.New("pricing: catalog lookup not configured")
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: %s has quantity %d", ErrInvalidQuantity, it.ID, it.Quantity)
		}
	}

	prices := make([]Money, len(items))
	for i, it := range items {
		product, err := lookup.Lookup(ctx, it.ID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, it.ID)
			}
			return nil, fmt.Errorf("lookup product %s: %w", it.ID, err)
		}
		if !product.Available {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, it.ID)
		}
		prices[i] = product.UnitPrice
	}

	// Amounts are bounded before any id is issued.
	lines := make([]LineItem, 0, len(items))
	var cart Money
	for i, it := range items {
		if prices[i] < 0 || (prices[i] > 0 && Money(it.Quantity) > MaxAmount/prices[i]) {
			return nil, fmt.Errorf("%w: %s amount out of range", ErrInvalidQuantity, it.ID)
		}
		base := prices[i] * Money(it.Quantity)
		var discount Money
		subtotal := base - discount
		exact := c.tax(subtotal)
		if exact.IsNegative() || exact.GreaterThan(decimal.NewFromInt(MaxAmount-subtotal)) {
			return nil, fmt.Errorf("%w: %s amount out of range", ErrInvalidQuantity, it.ID)
		}
		tax := exact.IntPart()
		if cart > MaxAmount-(subtotal+tax) {
			return nil, fmt.Errorf("%w: cart amount out of range", ErrInvalidQuantity)
		}
		cart += subtotal + tax
		lines = append(lines, LineItem{
			Item:       it,
			BaseAmount: base,
			Discount:   discount,
			Subtotal:   subtotal,
			Tax:        tax,
			Total:      subtotal + tax,
		})
	}
	for i := range lines {
		lines[i].ID = newID()
	}
	return lines, nil
}

// ComputeTotals aggregates line items. Shipping is appended, and added into
// the grand total, only when an option is selected.
func ComputeTotals(lines []LineItem, shipping *Money) []Total {
	var base, subtotal, tax Money
	for _, li := range lines {
		base += li.BaseAmount
		subtotal += li.Subtotal
		tax += li.Tax
	}
	grand := subtotal + tax

	totals := make([]Total, 0, 5)
	totals = append(totals,
		Total{Type: TotalItemsBaseAmount, DisplayText: "Item(s) total", Amount: base},
		Total{Type: TotalSubtotal, DisplayText: "Subtotal", Amount: subtotal},
		Total{Type: TotalTax, DisplayText: "Tax", Amount: tax},
	)
	if shipping != nil {
		totals = append(totals, Total{Type: TotalShipping, DisplayText: "Shipping", Amount: *shipping})
		grand += *shipping
	}
	return append(totals, Total{Type: TotalTotal, DisplayText: "Total", Amount: grand})
}

// Amount returns the amount of the first total of the given type.
func Amount(totals []Total, kind string) (Money, bool) {
	for _, t := range totals {
		if t.Type == kind {
			return t.Amount, true
		}
	}
	return 0, false
}
