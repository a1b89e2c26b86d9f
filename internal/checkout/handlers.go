package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/acp-checkout/internal/common"
)

// Handler exposes the checkout session API over HTTP.
type Handler struct {
	Svc *Service
}

// Routes registers the session endpoints on r, relative to the collection path.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}", h.Update)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
}

// Create handles POST /checkout_sessions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	sess, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, sess)
}

// Get handles GET /checkout_sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

// Update handles POST /checkout_sessions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req UpdateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	sess, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

// Complete handles POST /checkout_sessions/{id}/complete. A failed capture
// answers 402 with the session so the agent can retry.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CompleteRequest
	if err := common.DecodeJSON(r, &req); err != nil && !errors.Is(err, common.ErrEmptyBody) {
		writeDecodeError(w, err)
		return
	}
	sess, err := h.Svc.Complete(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		var pfe *PaymentFailedError
		if errors.As(err, &pfe) {
			common.JSON(w, http.StatusPaymentRequired, map[string]any{
				"error":   common.ErrorBody{Code: "PAYMENT_FAILED", Message: PaymentFailedContent},
				"session": pfe.Session,
			})
			return
		}
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

// Cancel handles POST /checkout_sessions/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return false
	}
	return true
}

var errorTable = []struct {
	target  error
	code    string
	status  int
	message string
}{
	{ErrSessionNotFound, "SESSION_NOT_FOUND", http.StatusNotFound, "checkout session not found"},
	{ErrSessionClosed, "SESSION_CLOSED", http.StatusConflict, "checkout session is closed"},
	{ErrNotReadyForPayment, "NOT_READY_FOR_PAYMENT", http.StatusBadRequest, "checkout session is not ready for payment"},
	{ErrProductNotFound, "PRODUCT_NOT_FOUND", http.StatusUnprocessableEntity, "product not found"},
	{ErrProductUnavailable, "PRODUCT_UNAVAILABLE", http.StatusConflict, "product unavailable"},
	{ErrInvalidQuantity, "INVALID_QUANTITY", http.StatusUnprocessableEntity, "quantity must be at least 1"},
	{ErrInvalidFulfillmentOption, "INVALID_FULFILLMENT_OPTION", http.StatusUnprocessableEntity, "unknown fulfillment option"},
	{ErrInvalidRequest, "BAD_REQUEST", http.StatusBadRequest, "invalid request"},
	{ErrCatalogUnavailable, "CATALOG_UNAVAILABLE", http.StatusServiceUnavailable, "catalog unavailable, retry later"},
	{ErrPaymentCaptureFailed, "PAYMENT_FAILED", http.StatusPaymentRequired, PaymentFailedContent},
}

// toAppError maps service errors onto the HTTP error envelope.
func toAppError(err error) *common.AppError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			appErr := common.NewAppError(e.code, e.message, e.status, err)
			if e.target == ErrProductNotFound || e.target == ErrInvalidRequest || e.target == ErrInvalidFulfillmentOption {
				appErr = appErr.WithDetails(err.Error())
			}
			return appErr
		}
	}
	return common.AsAppError(err)
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, toAppError(err))
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, common.ErrEmptyBody) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "request body is required", nil)
		return
	}
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body", nil)
}
