package services

import (
	"context"

	"github.com/eventcard/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Store opens atomic units over the card and ledger tables and serves the
// unlocked reads used for history and reporting.
type Store interface {
	LedgerReader
	Begin(ctx context.Context) (UnitOfWork, error)
	GetCard(ctx context.Context, eventID, uid string) (*models.Card, error)
}

// LedgerReader is the read-only side of the ledger. Reads take no locks and
// may trail an in-flight unit.
type LedgerReader interface {
	FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
}

// UnitOfWork is one atomic unit: card locks taken through it are held until
// Commit or Rollback, and its writes become visible together or not at all.
// Rollback after Commit is a no-op, so callers defer it unconditionally.
type UnitOfWork interface {
	// LockCard acquires exclusive access to one card for the rest of the unit.
	// It fails with ErrCardNotFound or, after the bounded wait, ErrBusy.
	LockCard(ctx context.Context, eventID, uid string) (*CardLock, error)
	// EnsureCard registers the card with a zero balance if it does not exist.
	EnsureCard(ctx context.Context, eventID, uid string) error
	SetBalance(ctx context.Context, lock *CardLock, newBalance decimal.Decimal) error
	SetActive(ctx context.Context, lock *CardLock, active bool) error
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error)
	FindVoidFor(ctx context.Context, saleID string) (*models.LedgerEntry, error)
	Commit() error
	Rollback() error
}

// CardLock is the token for a card held by a unit. Card reflects the unit's
// view, including balance changes made through it.
type CardLock struct {
	Card  models.Card
	owner UnitOfWork
}
