package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType is the kind of monetary operation a ledger entry records
type EntryType string

const (
	EntryReload EntryType = "RELOAD"
	EntrySale   EntryType = "SALE"
	EntryVoid   EntryType = "VOID"
	EntryRefund EntryType = "REFUND"
)

// Valid reports whether t is one of the known entry types
func (t EntryType) Valid() bool {
	switch t {
	case EntryReload, EntrySale, EntryVoid, EntryRefund:
		return true
	}
	return false
}

// Credit reports whether money flows onto the card for this entry type.
func (t EntryType) Credit() bool {
	return t == EntryReload || t == EntryVoid
}

// Signed applies the ledger sign convention to a positive magnitude:
// RELOAD and VOID are positive, SALE and REFUND are negative.
func (t EntryType) Signed(magnitude decimal.Decimal) decimal.Decimal {
	if t.Credit() {
		return magnitude.Abs()
	}
	return magnitude.Abs().Neg()
}

// LedgerEntry is one immutable, signed record of a completed operation
type LedgerEntry struct {
	ID               string          `json:"id" db:"id"`
	Seq              int64           `json:"-" db:"seq"`
	EventID          string          `json:"eventId" db:"event_id"`
	CardUID          string          `json:"cardUid" db:"card_uid"`
	Type             EntryType       `json:"type" db:"entry_type"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	ActorID          string          `json:"actorId" db:"actor_id"`
	Detail           string          `json:"detail" db:"detail"`
	ReferenceEntryID *string         `json:"referenceEntryId,omitempty" db:"reference_entry_id"`
	Timestamp        time.Time       `json:"timestamp" db:"created_at"`
}

// EntryFilter narrows a ledger listing; zero fields are ignored
type EntryFilter struct {
	EventID string
	ActorID string
	CardUID string
	Type    EntryType
	Since   time.Time
	Limit   int
}

// SaleItem is one priced line of a cart sale
type SaleItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// SaleDetail is the itemized detail stored on cart sales
type SaleDetail struct {
	Items []SaleItem `json:"items"`
}

// Product is a priced catalog item of an event
type Product struct {
	ID      string          `json:"id" db:"id"`
	EventID string          `json:"eventId" db:"event_id"`
	Name    string          `json:"name" db:"name"`
	Price   decimal.Decimal `json:"price" db:"price"`
}

// ProductSummary aggregates one seller's sales of a product
type ProductSummary struct {
	ProductName string          `json:"productName"`
	Qty         int             `json:"qty"`
	Amount      decimal.Decimal `json:"amount"`
}
