package checkout

import "github.com/google/uuid"

// IDGenerator mints identifiers for sessions and the records they own.
type IDGenerator interface {
	SessionID() string
	LineItemID() string
	OrderID() string
}

// UUIDGenerator prefixes random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) SessionID() string  { return "cs_" + uuid.NewString() }
func (UUIDGenerator) LineItemID() string { return "li_" + uuid.NewString() }
func (UUIDGenerator) OrderID() string    { return "order_" + uuid.NewString() }
