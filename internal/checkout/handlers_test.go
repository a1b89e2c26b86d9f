package checkout_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acp-checkout/internal/checkout"
)

func newRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/api/acp/checkout_sessions", (&checkout.Handler{Svc: f.svc}).Routes)
	return r, f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
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

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) checkout.Session {
	t.Helper()
	var sess checkout.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Session *checkout.Session `json:"session"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandlerLifecycle(t *testing.T) {
	h, _ := newRouter(t)

	rec := do(t, h, http.MethodPost, "/api/acp/checkout_sessions", `{"items":[{"id":"p1","quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"fulfillment_options":[]`)
	require.Contains(t, rec.Body.String(), `"messages":[]`)
	created := decodeSession(t, rec)
	require.Equal(t, checkout.StatusNotReadyForPayment, created.Status)
	base := "/api/acp/checkout_sessions/" + created.ID

	rec = do(t, h, http.MethodPost, base, `{"buyer_email":"a@b.com","fulfillment_address":{"name":"Ada","line_one":"1 Main St","city":"Springfield","country":"US","postal_code":"62701"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, checkout.StatusReadyForPayment, decodeSession(t, rec).Status)

	rec = do(t, h, http.MethodPost, base, `{"selected_fulfillment_option_id":"express"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(3700), decodeSession(t, rec).Total())

	rec = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "express", decodeSession(t, rec).SelectedFulfillmentOptionID)

	rec = do(t, h, http.MethodPost, base+"/complete", `{"payment_data":{"stripe_payment_method_id":"pm_card_visa"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeSession(t, rec)
	require.Equal(t, checkout.StatusCompleted, done.Status)
	require.NotEmpty(t, done.OrderID)
	require.Equal(t, int64(3700), done.Total())

	rec = do(t, h, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "SESSION_CLOSED", decodeError(t, rec).Error.Code)
}

func TestHandlerPaymentFailureReturnsSession(t *testing.T) {
	h, f := newRouter(t)
	sess := newReadySession(t, f)

	rec := do(t, h, http.MethodPost, "/api/acp/checkout_sessions/"+sess.ID+"/complete", `{"payment_data":{"stripe_payment_method_id":"pm_card_chargeDeclined"}}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, "PAYMENT_FAILED", env.Error.Code)
	require.NotNil(t, env.Session)
	require.Equal(t, checkout.StatusReadyForPayment, env.Session.Status)
	require.Len(t, env.Session.Messages, 1)
	require.Equal(t, "payment_failed", env.Session.Messages[0].Code)

	// No body at all is a missing payment method, not a malformed request.
	rec = do(t, h, http.MethodPost, "/api/acp/checkout_sessions/"+sess.ID+"/complete", "")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	h, f := newRouter(t)
	notReady, err := f.svc.Create(t.Context(), checkout.CreateRequest{Items: []checkout.Item{{ID: "p1", Quantity: 1}}})
	require.NoError(t, err)
	ready := newReadySession(t, f)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing session", http.MethodGet, "/api/acp/checkout_sessions/cs_nope", "", http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"malformed json", http.MethodPost, "/api/acp/checkout_sessions", `{"items":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"empty body", http.MethodPost, "/api/acp/checkout_sessions", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"no items", http.MethodPost, "/api/acp/checkout_sessions", `{"items":[]}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown product", http.MethodPost, "/api/acp/checkout_sessions", `{"items":[{"id":"nonexistent","quantity":1}]}`, http.StatusUnprocessableEntity, "PRODUCT_NOT_FOUND"},
		{"unavailable product", http.MethodPost, "/api/acp/checkout_sessions", `{"items":[{"id":"gone","quantity":1}]}`, http.StatusConflict, "PRODUCT_UNAVAILABLE"},
		{"zero quantity", http.MethodPost, "/api/acp/checkout_sessions", `{"items":[{"id":"p1","quantity":0}]}`, http.StatusUnprocessableEntity, "INVALID_QUANTITY"},
		{"huge quantity", http.MethodPost, "/api/acp/checkout_sessions", `{"items":[{"id":"p1","quantity":9232381000000000}]}`, http.StatusUnprocessableEntity, "INVALID_QUANTITY"},
		{"unknown option", http.MethodPost, "/api/acp/checkout_sessions/" + ready.ID, `{"selected_fulfillment_option_id":"drone"}`, http.StatusUnprocessableEntity, "INVALID_FULFILLMENT_OPTION"},
		{"not ready", http.MethodPost, "/api/acp/checkout_sessions/" + notReady.ID + "/complete", `{"payment_data":{"stripe_payment_method_id":"pm_card_visa"}}`, http.StatusBadRequest, "NOT_READY_FOR_PAYMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decodeError(t, rec).Error.Code)
		})
	}
}

func TestHandlerCatalogUnavailable(t *testing.T) {
	h, f := newRouter(t)
	f.svc.Catalog = failingLookup{}
	rec := do(t, h, http.MethodPost, "/api/acp/checkout_sessions", `{"items":[{"id":"p1","quantity":1}]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "CATALOG_UNAVAILABLE", decodeError(t, rec).Error.Code)
}

func TestDiscoveryDocument(t *testing.T) {
	rec := httptest.NewRecorder()
	checkout.Discovery{BaseURL: "https://shop.example/", MerchantName: "Sonora Threads"}.
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agentic-commerce.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Version   string                     `json:"acp_version"`
		Endpoints map[string]string          `json:"endpoints"`
		Providers []checkout.PaymentProvider `json:"payment_providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "draft-2025-09", doc.Version)
	require.Equal(t, "https://shop.example/api/acp/checkout_sessions", doc.Endpoints["checkout_sessions"])
	require.Equal(t, "stripe", doc.Providers[0].Provider)
}
