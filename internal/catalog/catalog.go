package catalog

import (
	"context"
	"errors"
)

// ErrProductNotFound is returned when a product id does not resolve.
var ErrProductNotFound = errors.New("product not found")

// Product is a sellable item priced in minor units.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Available   bool   `json:"available"`
	Image       string `json:"image,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Lookup resolves a single product by id.
type Lookup interface {
	Lookup(ctx context.Context, id string) (Product, error)
}

// Source is a Lookup that can also enumerate the catalog for feeds.
type Source interface {
	Lookup
	List(ctx context.Context) ([]Product, error)
}

func find(products []Product, id string) (Product, error) {
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}
