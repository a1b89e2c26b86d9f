package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/acp-checkout/internal/catalog"
)

type countingLookup struct {
	products map[string]catalog.Product
	calls    int
}

func (l *countingLookup) Lookup(_ context.Context, id string) (catalog.Product, error) {
	l.calls++
	p, ok := l.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func TestTaxRoundsHalfUp(t *testing.T) {
	calc := NewCalculator(decimal.Zero)
	cases := map[Money]Money{
		1000: 100,
		999:  100,
		994:  99,
		995:  100,
		0:    0,
		2000: 200,
	}
	for subtotal, want := range cases {
		if got := calc.Tax(subtotal); got != want {
			t.Fatalf("tax(%d): expected %d, got %d", subtotal, want, got)
		}
	}
}

func TestTaxUsesConfiguredRate(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.0825"))
	if got := calc.Tax(1000); got != 83 {
		t.Fatalf("expected 83, got %d", got)
	}
}

func TestComputeLineItems(t *testing.T) {
	lookup := &countingLookup{products: map[string]catalog.Product{
		"p1": {ID: "p1", UnitPrice: 1000, Available: true},
		"p2": {ID: "p2", UnitPrice: 333, Available: true},
	}}
	calc := NewCalculator(decimal.Zero)

	lines, err := calc.ComputeLineItems(context.Background(), []Item{{ID: "p1", Quantity: 2}, {ID: "p2", Quantity: 3}}, lookup, sequence("li_"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(lines))
	}
	first := lines[0]
	if first.ID != "li_1" || first.Item.ID != "p1" || first.BaseAmount != 2000 || first.Discount != 0 || first.Subtotal != 2000 || first.Tax != 200 || first.Total != 2200 {
		t.Fatalf("unexpected first line: %+v", first)
	}
	second := lines[1]
	if second.BaseAmount != 999 || second.Tax != 100 || second.Total != 1099 {
		t.Fatalf("unexpected second line: %+v", second)
	}
}

func TestComputeLineItemsUnknownProductReturnsNothing(t *testing.T) {
	lookup := &countingLookup{products: map[string]catalog.Product{
		"p1": {ID: "p1", UnitPrice: 1000, Available: true},
	}}
	calc := NewCalculator(decimal.Zero)
	ids := 0
	lines, err := calc.ComputeLineItems(context.Background(), []Item{{ID: "p1", Quantity: 1}, {ID: "nonexistent", Quantity: 1}}, lookup, func() string {
		ids++
		return "li"
	})
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if lines != nil {
		t.Fatalf("expected no line items, got %+v", lines)
	}
	if ids != 0 {
		t.Fatalf("expected no ids to be generated, got %d", ids)
	}
}

func TestComputeLineItemsRejectsQuantityBeforeLookup(t *testing.T) {
	lookup := &countingLookup{products: map[string]catalog.Product{"p1": {ID: "p1", UnitPrice: 1000, Available: true}}}
	calc := NewCalculator(decimal.Zero)
	for _, qty := range []int{0, -2} {
		_, err := calc.ComputeLineItems(context.Background(), []Item{{ID: "p1", Quantity: qty}}, lookup, sequence("li_"))
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
	if lookup.calls != 0 {
		t.Fatalf("expected no catalog calls, got %d", lookup.calls)
	}
}

func TestComputeLineItemsUnavailableProduct(t *testing.T) {
	lookup := &countingLookup{products: map[string]catalog.Product{"p1": {ID: "p1", UnitPrice: 1000}}}
	_, err := NewCalculator(decimal.Zero).ComputeLineItems(context.Background(), []Item{{ID: "p1", Quantity: 1}}, lookup, sequence("li_"))
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
}

func TestComputeTotalsOrderAndShipping(t *testing.T) {
	lines := []LineItem{
		{BaseAmount: 2000, Subtotal: 2000, Tax: 200, Total: 2200},
	}

	totals := ComputeTotals(lines, nil)
	wantTypes := []string{TotalItemsBaseAmount, TotalSubtotal, TotalTax, TotalTotal}
	if len(totals) != len(wantTypes) {
		t.Fatalf("expected %d totals, got %d", len(wantTypes), len(totals))
	}
	for i, kind := range wantTypes {
		if totals[i].Type != kind {
			t.Fatalf("position %d: expected %s, got %s", i, kind, totals[i].Type)
		}
	}
	if amount, _ := Amount(totals, TotalTotal); amount != 2200 {
		t.Fatalf("expected total 2200, got %d", amount)
	}

	shipping := Money(1500)
	totals = ComputeTotals(lines, &shipping)
	if totals[3].Type != TotalShipping || totals[3].Amount != 1500 {
		t.Fatalf("expected shipping before total, got %+v", totals[3])
	}
	if totals[4].Type != TotalTotal || totals[4].Amount != 3700 {
		t.Fatalf("expected total 3700 last, got %+v", totals[4])
	}
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(nil, nil)
	if len(totals) != 4 {
		t.Fatalf("expected 4 totals, got %d", len(totals))
	}
	for _, total := range totals {
		if total.Amount != 0 {
			t.Fatalf("expected zero amounts, got %+v", total)
		}
	}
}

func TestComputeLineItemsRejectsOverflowingAmounts(t *testing.T) {
	lookup := &countingLookup{products: map[string]catalog.Product{
		"p1":   {ID: "p1", UnitPrice: 1000, Available: true},
		"gold": {ID: "gold", UnitPrice: MaxAmount / 2, Available: true},
		"huge": {ID: "huge", UnitPrice: math.MaxInt64 / 999, Available: true},
	}}
	calc := NewCalculator(decimal.Zero)
	cases := map[string][]Item{
		"quantity above cap":      {{ID: "p1", Quantity: math.MaxInt64 / 999}},
		"price times quantity":    {{ID: "huge", Quantity: 1000}},
		"line total with tax":     {{ID: "gold", Quantity: 2}},
		"cart total across lines": {{ID: "gold", Quantity: 1}, {ID: "gold", Quantity: 1}},
	}
	for name, items := range cases {
		ids := 0
		lines, err := calc.ComputeLineItems(context.Background(), items, lookup, func() string {
			ids++
			return "li"
		})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("%s: expected ErrInvalidQuantity, got %v (lines %+v)", name, err, lines)
		}
		if ids != 0 {
			t.Fatalf("%s: expected no ids to be issued, got %d", name, ids)
		}
	}
}

func TestComputeLineItemsAtQuantityCap(t *testing.T) {
	lookup := &countingLookup{products: map[string]catalog.Product{"p1": {ID: "p1", UnitPrice: 1000, Available: true}}}
	lines, err := NewCalculator(decimal.Zero).ComputeLineItems(context.Background(), []Item{{ID: "p1", Quantity: MaxQuantity}}, lookup, sequence("li_"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines[0].Total != 11_000_000 {
		t.Fatalf("expected 11000000, got %d", lines[0].Total)
	}
	totals := ComputeTotals(lines, nil)
	if got, _ := Amount(totals, TotalTotal); got != 11_000_000 {
		t.Fatalf("expected total 11000000, got %d", got)
	}
}
