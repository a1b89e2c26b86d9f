package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable wraps upstream catalog failures.
var ErrUnavailable = errors.New("catalog unavailable")

const listCacheKey = "products"

// Doer sends an HTTP request; resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FakeStore reads products from a FakeStore-compatible API. Results are
// memoised in process for TTL and mirrored to Cache when one is set.
// Concurrent refreshes collapse into one upstream call.
type FakeStore struct {
	BaseURL  string
	Category string
	HTTP     Doer
	Cache    *Cache
	TTL      time.Duration
	Fallback Source
	Logger   zerolog.Logger
	Now      func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	memo    []Product
	expires time.Time
}

type fakeStoreItem struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
}

// Lookup implements Lookup.
func (f *FakeStore) Lookup(ctx context.Context, id string) (Product, error) {
	products, err := f.List(ctx)
	if err != nil {
		return Product{}, err
	}
	return find(products, id)
}

// List implements Source.
func (f *FakeStore) List(ctx context.Context) ([]Product, error) {
	if products, ok := f.memoised(); ok {
		return products, nil
	}
	// The shared refresh must outlive any single caller; per-attempt timeouts
	// in HTTP still bound it.
	flight := f.group.DoChan(listCacheKey, func() (any, error) {
		return f.refresh(context.WithoutCancel(ctx))
	})
	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		if f.Fallback == nil {
			return nil, err
		}
		f.Logger.Warn().Err(err).Msg("catalog_upstream_failed_using_fallback")
		return f.Fallback.List(ctx)
	}
	return clone(v.([]Product)), nil
}

func (f *FakeStore) refresh(ctx context.Context) ([]Product, error) {
	var products []Product
	hit, err := f.Cache.GetJSON(ctx, listCacheKey, &products)
	if err != nil {
		f.Logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	}
	if !hit {
		products, err = f.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := f.Cache.SetJSON(ctx, listCacheKey, products); err != nil {
			f.Logger.Warn().Err(err).Msg("catalog_cache_write_failed")
		}
	}

	f.mu.Lock()
	f.memo = products
	f.expires = f.now().Add(f.ttl())
	f.mu.Unlock()
	return products, nil
}

func (f *FakeStore) fetch(ctx context.Context) ([]Product, error) {
	if f.HTTP == nil {
		return nil, fmt.Errorf("%w: http client not configured", ErrUnavailable)
	}
	endpoint := strings.TrimRight(f.BaseURL, "/") + "/products"
	if category := strings.TrimSpace(f.Category); category != "" {
		endpoint += "/category/" + url.PathEscape(category)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream responded %s", ErrUnavailable, resp.Status)
	}

	var items []fakeStoreItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: decode products: %w", ErrUnavailable, err)
	}
	products := make([]Product, 0, len(items))
	for _, it := range items {
		products = append(products, Product{
			ID:          strconv.FormatInt(it.ID, 10),
			Name:        it.Title,
			Description: it.Description,
			// upstream prices are dollars; round to whole dollars before converting
			UnitPrice: int64(math.Round(it.Price)) * 100,
			Available: true,
			Image:     it.Image,
			Category:  it.Category,
		})
	}
	f.Logger.Debug().Int("count", len(products)).Str("endpoint", endpoint).Msg("catalog_refreshed")
	return products, nil
}

func (f *FakeStore) memoised() ([]Product, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.memo == nil || !f.now().Before(f.expires) {
		return nil, false
	}
	return clone(f.memo), true
}

func (f *FakeStore) ttl() time.Duration {
	if f.TTL <= 0 {
		return 5 * time.Minute
	}
	return f.TTL
}

func (f *FakeStore) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func clone(products []Product) []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}
