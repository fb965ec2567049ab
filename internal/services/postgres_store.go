package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventcard/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	pgLockNotAvailable = "55P03"
	pgUniqueViolation  = "23505"
	pgNumericOverflow  = "22003"
	oneVoidPerSaleIdx  = "ledger_entries_one_void_per_sale"

	// lock_timeout = 0 disables the timeout, so the wait is never shorter than this
	minLockTimeout = time.Millisecond

	entryColumns = `id, seq, event_id, card_uid, entry_type, amount, actor_id, detail, reference_entry_id, created_at`
)

// PostgresStore keeps cards and the ledger in Postgres and relies on row
// locks (SELECT ... FOR UPDATE) held for the lifetime of one transaction.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout < minLockTimeout {
		lockTimeout = minLockTimeout
	}
	return &PostgresStore{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

func (s *PostgresStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}

	// lock_timeout bounds the wait on FOR UPDATE; the unit fails with 55P03
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return nil, storageErr("set lock timeout", err)
	}

	return &pgUnit{tx: tx}, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, eventID, uid string) (*models.Card, error) {
	var card models.Card
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, event_id, balance, is_active, created_at, updated_at
		FROM cards
		WHERE event_id = $1 AND uid = $2`, eventID, uid).
		Scan(&card.UID, &card.EventID, &card.Balance, &card.Active, &card.CreatedAt, &card.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, storageErr("get card", err)
	}
	return &card, nil
}

func (s *PostgresStore) FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error) {
	return findEntry(ctx, s.db, eventID, entryID)
}

func (s *PostgresStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE event_id = $1`
	args := []any{filter.EventID}

	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if filter.CardUID != "" {
		args = append(args, filter.CardUID)
		query += fmt.Sprintf(" AND card_uid = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND entry_type = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list entries", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr("scan entry", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list entries", err)
	}
	return entries, nil
}

type pgUnit struct {
	tx   *sql.Tx
	done bool
}

func (u *pgUnit) LockCard(ctx context.Context, eventID, uid string) (*CardLock, error) {
	if u.done {
		return nil, ErrLockReleased
	}

	lock := &CardLock{owner: u}
	err := u.tx.QueryRowContext(ctx, `
		SELECT uid, event_id, balance, is_active, created_at, updated_at
		FROM cards
		WHERE event_id = $1 AND uid = $2
		FOR UPDATE`, eventID, uid).
		Scan(&lock.Card.UID, &lock.Card.EventID, &lock.Card.Balance, &lock.Card.Active, &lock.Card.CreatedAt, &lock.Card.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, translatePgError("lock card", err)
	}
	return lock, nil
}

func (u *pgUnit) EnsureCard(ctx context.Context, eventID, uid string) error {
	if u.done {
		return ErrLockReleased
	}

	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO cards (event_id, uid, balance, is_active, created_at, updated_at)
		VALUES ($1, $2, 0, TRUE, $3, $3)
		ON CONFLICT (event_id, uid) DO NOTHING`, eventID, uid, time.Now().UTC())
	if err != nil {
		return translatePgError("ensure card", err)
	}
	return nil
}

func (u *pgUnit) SetBalance(ctx context.Context, lock *CardLock, newBalance decimal.Decimal) error {
	if err := u.checkLock(lock); err != nil {
		return err
	}
	if newBalance.IsNegative() {
		return ErrNegativeBalance
	}

	now := time.Now().UTC()
	_, err := u.tx.ExecContext(ctx, `
		UPDATE cards
		SET balance = $1, updated_at = $2
		WHERE event_id = $3 AND uid = $4`,
		newBalance, now, lock.Card.EventID, lock.Card.UID)
	if err != nil {
		return translatePgError("update balance", err)
	}

	lock.Card.Balance = newBalance
	lock.Card.UpdatedAt = now
	return nil
}

func (u *pgUnit) SetActive(ctx context.Context, lock *CardLock, active bool) error {
	if err := u.checkLock(lock); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := u.tx.ExecContext(ctx, `
		UPDATE cards
		SET is_active = $1, updated_at = $2
		WHERE event_id = $3 AND uid = $4`,
		active, now, lock.Card.EventID, lock.Card.UID)
	if err != nil {
		return translatePgError("update status", err)
	}

	lock.Card.Active = active
	lock.Card.UpdatedAt = now
	return nil
}

func (u *pgUnit) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if u.done {
		return ErrLockReleased
	}

	err := u.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, event_id, card_uid, entry_type, amount, actor_id, detail, reference_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		entry.ID, entry.EventID, entry.CardUID, string(entry.Type), entry.Amount,
		entry.ActorID, entry.Detail, nullableRef(entry.ReferenceEntryID), entry.Timestamp).Scan(&entry.Seq)
	if err != nil {
		return translatePgError("append entry", err)
	}
	return nil
}

func (u *pgUnit) FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error) {
	return findEntry(ctx, u.tx, eventID, entryID)
}

func (u *pgUnit) FindVoidFor(ctx context.Context, saleID string) (*models.LedgerEntry, error) {
	row := u.tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE reference_entry_id = $1 AND entry_type = 'VOID'`, saleID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, storageErr("find void", err)
	}
	return entry, nil
}

func (u *pgUnit) Commit() error {
	if u.done {
		return ErrLockReleased
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return translatePgError("commit", err)
	}
	return nil
}

func (u *pgUnit) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return storageErr("rollback", err)
	}
	return nil
}

func (u *pgUnit) checkLock(lock *CardLock) error {
	if u.done || lock == nil || lock.owner != u {
		return ErrLockReleased
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func findEntry(ctx context.Context, q queryRower, eventID, entryID string) (*models.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE event_id = $1 AND id = $2`, eventID, entryID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, storageErr("find entry", err)
	}
	return entry, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var entryType string
	var reference sql.NullString
	err := row.Scan(&entry.ID, &entry.Seq, &entry.EventID, &entry.CardUID, &entryType,
		&entry.Amount, &entry.ActorID, &entry.Detail, &reference, &entry.Timestamp)
	if err != nil {
		return nil, err
	}
	entry.Type = models.EntryType(entryType)
	if reference.Valid {
		entry.ReferenceEntryID = &reference.String
	}
	return &entry, nil
}

func nullableRef(ref *string) sql.NullString {
	if ref == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ref, Valid: true}
}

// translatePgError maps lock contention and the one-void-per-sale index to
// engine errors; anything else is a storage failure.
func translatePgError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pgLockNotAvailable:
			return ErrBusy
		case pqErr.Code == pgUniqueViolation && pqErr.Constraint == oneVoidPerSaleIdx:
			return ErrAlreadyVoided
		case pqErr.Code == pgNumericOverflow:
			return ErrInvalidAmount
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBusy
	}
	return storageErr(op, err)
}
