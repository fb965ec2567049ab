package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Card represents a stored-value NFC card scoped to one event
type Card struct {
	UID       string          `json:"uid" db:"uid"`
	EventID   string          `json:"eventId" db:"event_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Active    bool            `json:"active" db:"is_active"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// CardStatus represents card status
const (
	CardStatusActive  = "active"
	CardStatusBlocked = "blocked"
)

// Status reports the card status as shown to terminals
func (c *Card) Status() string {
	if c.Active {
		return CardStatusActive
	}
	return CardStatusBlocked
}

// CardView is the read-only card shape returned to terminals
type CardView struct {
	UID     string          `json:"uid"`
	Balance decimal.Decimal `json:"balance"`
	Status  string          `json:"status"`
	Exists  bool            `json:"exists"`
}

// NormalizeUID trims and upper-cases a card UID as read by the terminals.
func NormalizeUID(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}
