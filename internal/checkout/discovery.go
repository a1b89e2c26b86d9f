package checkout

import (
	"net/http"
	"strings"

	"github.com/noah-isme/acp-checkout/internal/common"
)

const protocolVersion = "draft-2025-09"

// Discovery serves the /.well-known/agentic-commerce.json document.
type Discovery struct {
	BaseURL      string
	MerchantName string
	Provider     PaymentProvider
}

// ServeHTTP implements http.Handler.
func (d Discovery) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	base := strings.TrimRight(d.BaseURL, "/")
	provider := d.Provider
	if provider.Provider == "" {
		provider = DefaultPaymentProvider()
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"acp_version": protocolVersion,
		"merchant": map[string]any{
			"name":   d.MerchantName,
			"domain": base,
		},
		"endpoints": map[string]any{
			"checkout_sessions": base + "/api/acp/checkout_sessions",
		},
		"feeds": map[string]any{
			"products_json": base + "/api/feed/products.json",
			"products_xml":  base + "/api/feed/products.xml",
		},
		"payment_providers": []PaymentProvider{provider},
		"capabilities": []string{
			"checkout_sessions.create",
			"checkout_sessions.update",
			"checkout_sessions.complete",
			"checkout_sessions.cancel",
			"fulfillment.shipping",
		},
	})
}
