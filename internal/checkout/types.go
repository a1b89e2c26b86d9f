package checkout

import (
	"github.com/noah-isme/acp-checkout/internal/pricing"
)

// Status is the lifecycle position of a session.
type Status string

const (
	StatusNotReadyForPayment Status = "not_ready_for_payment"
	StatusReadyForPayment    Status = "ready_for_payment"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

type (
	Item     = pricing.Item
	LineItem = pricing.LineItem
	Total    = pricing.Total
)

// Address is a fulfillment address. LineOne is the street line.
type Address struct {
	Name       string `json:"name,omitempty"`
	LineOne    string `json:"line_one,omitempty"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// HasStreetLine reports whether a is present with a non-empty street line.
func (a *Address) HasStreetLine() bool {
	return a != nil && a.LineOne != ""
}

// FulfillmentOption is a selectable shipping method.
type FulfillmentOption struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	DisplayText  string `json:"display_text"`
	Amount       int64  `json:"amount"`
	Selected     bool   `json:"selected"`
	Carrier      string `json:"carrier,omitempty"`
	ServiceLevel string `json:"service_level,omitempty"`
}

// Message is a diagnostic attached to a session.
type Message struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// Link points buyers at merchant policies.
type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// PaymentProvider advertises how a session can be paid.
type PaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

// PaymentData carries the buyer's payment method token.
type PaymentData struct {
	StripePaymentMethodID string `json:"stripe_payment_method_id,omitempty"`
}

// Session is a checkout session as exchanged with agents.
type Session struct {
	ID                          string              `json:"id"`
	Status                      Status              `json:"status"`
	Currency                    string              `json:"currency"`
	PaymentProvider             *PaymentProvider    `json:"payment_provider,omitempty"`
	LineItems                   []LineItem          `json:"line_items"`
	Totals                      []Total             `json:"totals"`
	FulfillmentOptions          []FulfillmentOption `json:"fulfillment_options"`
	SelectedFulfillmentOptionID string              `json:"selected_fulfillment_option_id,omitempty"`
	BuyerEmail                  string              `json:"buyer_email,omitempty"`
	BuyerPhone                  string              `json:"buyer_phone,omitempty"`
	FulfillmentAddress          *Address            `json:"fulfillment_address,omitempty"`
	Messages                    []Message           `json:"messages"`
	Links                       []Link              `json:"links"`
	OrderID                     string              `json:"order_id,omitempty"`
	PaymentData                 *PaymentData        `json:"payment_data,omitempty"`
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.LineItems = cloneSlice(s.LineItems)
	out.Totals = cloneSlice(s.Totals)
	out.FulfillmentOptions = cloneSlice(s.FulfillmentOptions)
	out.Messages = cloneSlice(s.Messages)
	out.Links = cloneSlice(s.Links)
	if s.PaymentProvider != nil {
		pp := *s.PaymentProvider
		pp.SupportedPaymentMethods = cloneSlice(pp.SupportedPaymentMethods)
		out.PaymentProvider = &pp
	}
	if s.FulfillmentAddress != nil {
		addr := *s.FulfillmentAddress
		out.FulfillmentAddress = &addr
	}
	if s.PaymentData != nil {
		pd := *s.PaymentData
		out.PaymentData = &pd
	}
	return out
}

// Total returns the grand total recorded on the session.
func (s Session) Total() int64 {
	amount, _ := pricing.Amount(s.Totals, pricing.TotalTotal)
	return amount
}

// SelectedOption returns the selected fulfillment option, if any.
func (s Session) SelectedOption() (FulfillmentOption, bool) {
	for _, opt := range s.FulfillmentOptions {
		if opt.Selected {
			return opt, true
		}
	}
	return FulfillmentOption{}, false
}

// cloneSlice keeps empty slices non-nil so they serialise as [].
func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// CreateRequest opens a session.
type CreateRequest struct {
	Items              []Item   `json:"items" validate:"required,min=1,dive"`
	BuyerEmail         *string  `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerPhone         *string  `json:"buyer_phone,omitempty"`
	FulfillmentAddress *Address `json:"fulfillment_address,omitempty"`
}

// UpdateRequest changes a session. Nil fields are left untouched; a nil
// Items slice means "keep the current line items".
type UpdateRequest struct {
	Items                       []Item   `json:"items,omitempty" validate:"omitempty,dive"`
	BuyerEmail                  *string  `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerPhone                  *string  `json:"buyer_phone,omitempty"`
	FulfillmentAddress          *Address `json:"fulfillment_address,omitempty"`
	SelectedFulfillmentOptionID *string  `json:"selected_fulfillment_option_id,omitempty"`
}

// CompleteRequest pays for a session.
type CompleteRequest struct {
	PaymentData *PaymentData `json:"payment_data,omitempty"`
}
