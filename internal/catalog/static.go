package catalog

import "context"

// Static serves a fixed product list from memory.
type Static struct {
	products []Product
}

// NewStatic copies products into a Static source.
func NewStatic(products []Product) *Static {
	out := make([]Product, len(products))
	copy(out, products)
	return &Static{products: out}
}

// DefaultProducts is the seed catalog used when no upstream is configured or reachable.
func DefaultProducts() []Product {
	return []Product{
		{ID: "1", Name: "Soft Black Hoodie", Description: "Comfortable black hoodie", UnitPrice: 3200, Available: true, Image: "/placeholder.jpg", Category: "men's clothing"},
		{ID: "2", Name: "Warm Beanie", Description: "Cozy winter beanie", UnitPrice: 1500, Available: true, Image: "/placeholder.jpg", Category: "men's clothing"},
		{ID: "3", Name: "Classic White Tee", Description: "Classic white t-shirt", UnitPrice: 2500, Available: true, Image: "/placeholder.jpg", Category: "men's clothing"},
		{ID: "4", Name: "Denim Jacket", Description: "Stylish denim jacket", UnitPrice: 8900, Available: true, Image: "/placeholder.jpg", Category: "men's clothing"},
		{ID: "5", Name: "Cozy Socks", Description: "Warm and comfortable socks", UnitPrice: 1200, Available: true, Image: "/placeholder.jpg", Category: "men's clothing"},
	}
}

// Lookup implements Lookup.
func (s *Static) Lookup(_ context.Context, id string) (Product, error) {
	if s == nil {
		return Product{}, ErrProductNotFound
	}
	return find(s.products, id)
}

// List implements Source.
func (s *Static) List(context.Context) ([]Product, error) {
	if s == nil {
		return nil, nil
	}
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out, nil
}
