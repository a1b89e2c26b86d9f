package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acp-checkout/internal/app"
	"github.com/noah-isme/acp-checkout/internal/checkout"
	"github.com/noah-isme/acp-checkout/internal/config"
)

func loadConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"APP_ENV": "test", "PORT": "", "DATABASE_URL": "", "REDIS_URL": "",
		"SESSION_STORE": "memory", "PAYMENT_PROVIDER": "sandbox", "CATALOG_PROVIDER": "static",
		"EVENTS_BACKEND": "none", "RATE_LIMIT": "1000-M", "PRICING_TAX_RATE": "",
		"PUBLIC_BASE_URL": "https://shop.example", "MERCHANT_NAME": "Test Shop",
		"TERMS_URL": "", "PRIVACY_URL": "", "CORS_ALLOWED_ORIGINS": "",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	return cfg
}

func newServer(t *testing.T, cfg *config.Config, opts app.Options) http.Handler {
	t.Helper()
	deps, err := app.NewDependencies(context.Background(), cfg, zerolog.Nop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })
	return app.NewRouter(deps, app.RouterOptions{})
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func session(t *testing.T, rec *httptest.ResponseRecorder) checkout.Session {
	t.Helper()
	var sess checkout.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess), rec.Body.String())
	return sess
}

func runCheckout(t *testing.T, h http.Handler) {
	t.Helper()
	const base = "/api/acp/checkout_sessions"

	rec := call(t, h, http.MethodPost, base, `{"items":[{"id":"1","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	created := session(t, rec)
	require.Equal(t, checkout.StatusNotReadyForPayment, created.Status)
	require.Equal(t, int64(3520), created.Total())

	rec = call(t, h, http.MethodPost, base+"/"+created.ID, `{
		"buyer_email":"buyer@example.com",
		"fulfillment_address":{"name":"Ada","line_one":"1 Main St","city":"Springfield","country":"US","postal_code":"12345"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := session(t, rec)
	require.Equal(t, checkout.StatusReadyForPayment, updated.Status)
	require.Equal(t, int64(3200+320+500), updated.Total())

	rec = call(t, h, http.MethodPost, base+"/"+created.ID+"/complete", `{"payment_data":{"stripe_payment_method_id":"pm_card_visa"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := session(t, rec)
	require.Equal(t, checkout.StatusCompleted, done.Status)
	require.NotEmpty(t, done.OrderID)

	rec = call(t, h, http.MethodGet, base+"/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, done, session(t, rec))

	rec = call(t, h, http.MethodPost, base+"/"+created.ID+"/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutEndToEndInMemory(t *testing.T) {
	h := newServer(t, loadConfig(t, nil), app.Options{})
	runCheckout(t, h)
}

func TestCheckoutEndToEndOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := loadConfig(t, map[string]string{
		"SESSION_STORE": "redis",
		"REDIS_URL":     "redis://" + mr.Addr() + "/0",
	})
	h := newServer(t, cfg, app.Options{Redis: client})
	runCheckout(t, h)

	var stored int
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "acp:session:") {
			stored++
		}
	}
	require.Equal(t, 1, stored)

	rec := call(t, h, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRateLimitHeaders(t *testing.T) {
	h := newServer(t, loadConfig(t, map[string]string{"RATE_LIMIT": "1-M"}), app.Options{})

	rec := call(t, h, http.MethodGet, "/api/acp/checkout_sessions/cs_missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = call(t, h, http.MethodGet, "/api/acp/checkout_sessions/cs_missing", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newServer(t, loadConfig(t, nil), app.Options{})
	body := `{"items":[{"id":"1","quantity":1}],"buyer_phone":"` + strings.Repeat("9", 2<<20) + `"}`
	rec := call(t, h, http.MethodPost, "/api/acp/checkout_sessions", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDiscoveryAndFeed(t *testing.T) {
	h := newServer(t, loadConfig(t, nil), app.Options{})

	rec := call(t, h, http.MethodGet, "/.well-known/agentic-commerce.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	endpoints := doc["endpoints"].(map[string]any)
	require.Equal(t, "https://shop.example/api/acp/checkout_sessions", endpoints["checkout_sessions"])

	rec = call(t, h, http.MethodGet, "/api/feed/products.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Soft Black Hoodie")

	rec = call(t, h, http.MethodGet, "/api/feed/products.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "xml")
}

func TestHealthLive(t *testing.T) {
	h := newServer(t, loadConfig(t, nil), app.Options{})
	rec := call(t, h, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownStoreRejected(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"SESSION_STORE": "cassandra"})
	require.Error(t, err)
}
