package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eventcard/backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockCardQuery = "SELECT uid, event_id, balance, is_active, created_at, updated_at FROM cards WHERE event_id = \\$1 AND uid = \\$2 FOR UPDATE"

var entryRowColumns = []string{"id", "seq", "event_id", "card_uid", "entry_type", "amount", "actor_id", "detail", "reference_entry_id", "created_at"}

func newPostgresStoreMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, 3*time.Second), mock
}

func expectBegin(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '3000ms'").WillReturnResult(sqlmock.NewResult(0, 0))
}

func cardRow(uid, balance string, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"uid", "event_id", "balance", "is_active", "created_at", "updated_at"}).
		AddRow(uid, testEvent, balance, active, now, now)
}

func TestPostgresStore_Unit(t *testing.T) {
	ctx := context.Background()

	t.Run("lock, update, append and commit", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)

		expectBegin(mock)
		mock.ExpectQuery(lockCardQuery).
			WithArgs(testEvent, "CARD1").
			WillReturnRows(cardRow("CARD1", "100.00", true))
		mock.ExpectExec("UPDATE cards SET balance = \\$1, updated_at = \\$2 WHERE event_id = \\$3 AND uid = \\$4").
			WithArgs(dec("70"), sqlmock.AnyArg(), testEvent, "CARD1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO ledger_entries (.+) RETURNING seq").
			WithArgs("e1", testEvent, "CARD1", "SALE", dec("-30"), "seller-1", "2 beers", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))
		mock.ExpectCommit()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		defer unit.Rollback()

		lock, err := unit.LockCard(ctx, testEvent, "CARD1")
		require.NoError(t, err)
		assert.Equal(t, "100.00", lock.Card.Balance.StringFixed(2))
		assert.True(t, lock.Card.Active)

		require.NoError(t, unit.SetBalance(ctx, lock, dec("70")))
		entry := &models.LedgerEntry{
			ID: "e1", EventID: testEvent, CardUID: "CARD1", Type: models.EntrySale,
			Amount: dec("-30"), ActorID: "seller-1", Detail: "2 beers", Timestamp: time.Now(),
		}
		require.NoError(t, unit.AppendEntry(ctx, entry))
		assert.Equal(t, int64(7), entry.Seq)

		require.NoError(t, unit.Commit())
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("card not found", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)

		expectBegin(mock)
		mock.ExpectQuery(lockCardQuery).
			WithArgs(testEvent, "NOPE").
			WillReturnRows(sqlmock.NewRows([]string{"uid", "event_id", "balance", "is_active", "created_at", "updated_at"}))
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		_, err = unit.LockCard(ctx, testEvent, "NOPE")
		assert.ErrorIs(t, err, ErrCardNotFound)
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock timeout maps to busy", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)

		expectBegin(mock)
		mock.ExpectQuery(lockCardQuery).
			WithArgs(testEvent, "CARD1").
			WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		_, err = unit.LockCard(ctx, testEvent, "CARD1")
		assert.ErrorIs(t, err, ErrBusy)
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second void hits the unique index", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		ref := "sale-1"

		expectBegin(mock)
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_entries_one_void_per_sale"})
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		err = unit.AppendEntry(ctx, &models.LedgerEntry{
			ID: "v2", EventID: testEvent, CardUID: "CARD1", Type: models.EntryVoid, Amount: dec("5"), ReferenceEntryID: &ref,
		})
		assert.ErrorIs(t, err, ErrAlreadyVoided)
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is a storage failure", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)

		expectBegin(mock)
		mock.ExpectQuery(lockCardQuery).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		_, err = unit.LockCard(ctx, testEvent, "CARD1")
		assert.ErrorIs(t, err, ErrStorageFailure)
		assert.NotContains(t, err.Error(), "SELECT")
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("numeric overflow is an invalid amount", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)

		expectBegin(mock)
		mock.ExpectQuery(lockCardQuery).WillReturnRows(cardRow("CARD1", "1.00", true))
		mock.ExpectExec("UPDATE cards SET balance").
			WillReturnError(&pq.Error{Code: "22003", Message: "numeric field overflow"})
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		lock, err := unit.LockCard(ctx, testEvent, "CARD1")
		require.NoError(t, err)
		err = unit.SetBalance(ctx, lock, dec("10000000000"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NotErrorIs(t, err, ErrStorageFailure)
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock timeout is never zero", func(t *testing.T) {
		for _, timeout := range []time.Duration{0, 500 * time.Microsecond, -time.Second} {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)

			mock.ExpectBegin()
			mock.ExpectExec("SET LOCAL lock_timeout = '1ms'").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectRollback()

			unit, err := NewPostgresStore(db, timeout).Begin(ctx)
			require.NoError(t, err)
			assert.NoError(t, unit.Rollback())
			assert.NoError(t, mock.ExpectationsWereMet())
			db.Close()
		}
	})

	t.Run("begin failure", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		_, err := store.Begin(ctx)
		assert.ErrorIs(t, err, ErrStorageFailure)
	})

	t.Run("negative balance never reaches the database", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)

		expectBegin(mock)
		mock.ExpectQuery(lockCardQuery).WillReturnRows(cardRow("CARD1", "1.00", true))
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		lock, err := unit.LockCard(ctx, testEvent, "CARD1")
		require.NoError(t, err)
		assert.ErrorIs(t, unit.SetBalance(ctx, lock, dec("-1")), ErrNegativeBalance)
		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ensure card and find void", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		now := time.Now()

		expectBegin(mock)
		mock.ExpectExec("INSERT INTO cards (.+) ON CONFLICT \\(event_id, uid\\) DO NOTHING").
			WithArgs(testEvent, "NEW1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("FROM ledger_entries WHERE reference_entry_id = \\$1 AND entry_type = 'VOID'").
			WithArgs("sale-1").
			WillReturnRows(sqlmock.NewRows(entryRowColumns).
				AddRow("v1", 3, testEvent, "CARD1", "VOID", "5.00", "manager-1", "Void of entry #sale-1", "sale-1", now))
		mock.ExpectRollback()

		unit, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, unit.EnsureCard(ctx, testEvent, "NEW1"))

		void, err := unit.FindVoidFor(ctx, "sale-1")
		require.NoError(t, err)
		assert.Equal(t, models.EntryVoid, void.Type)
		require.NotNil(t, void.ReferenceEntryID)
		assert.Equal(t, "sale-1", *void.ReferenceEntryID)

		assert.NoError(t, unit.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("card history query", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		now := time.Now()

		mock.ExpectQuery("FROM ledger_entries WHERE event_id = \\$1 AND card_uid = \\$2 ORDER BY created_at DESC, seq DESC LIMIT \\$3").
			WithArgs(testEvent, "CARD1", 50).
			WillReturnRows(sqlmock.NewRows(entryRowColumns).
				AddRow("e2", 2, testEvent, "CARD1", "SALE", "-30.00", "seller-1", "", nil, now).
				AddRow("e1", 1, testEvent, "CARD1", "RELOAD", "100.00", "cashier-1", "Recharge", nil, now))

		entries, err := store.ListEntries(ctx, models.EntryFilter{EventID: testEvent, CardUID: "CARD1", Limit: 50})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "e2", entries[0].ID)
		assert.Equal(t, "-30.00", entries[0].Amount.StringFixed(2))
		assert.Nil(t, entries[0].ReferenceEntryID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("seller day listing", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		since := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("WHERE event_id = \\$1 AND actor_id = \\$2 AND entry_type = \\$3 AND created_at >= \\$4 ORDER BY").
			WithArgs(testEvent, "seller-1", "SALE", since).
			WillReturnRows(sqlmock.NewRows(entryRowColumns))

		entries, err := store.ListEntries(ctx, models.EntryFilter{EventID: testEvent, ActorID: "seller-1", Type: models.EntrySale, Since: since})
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown card", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		mock.ExpectQuery("FROM cards WHERE event_id = \\$1 AND uid = \\$2").
			WithArgs(testEvent, "NOPE").
			WillReturnRows(sqlmock.NewRows([]string{"uid", "event_id", "balance", "is_active", "created_at", "updated_at"}))

		_, err := store.GetCard(ctx, testEvent, "NOPE")
		assert.ErrorIs(t, err, ErrCardNotFound)
	})

	t.Run("entry of another event", func(t *testing.T) {
		store, mock := newPostgresStoreMock(t)
		mock.ExpectQuery("FROM ledger_entries WHERE event_id = \\$1 AND id = \\$2").
			WithArgs("evt-2", "e1").
			WillReturnRows(sqlmock.NewRows(entryRowColumns))

		_, err := store.FindEntry(ctx, "evt-2", "e1")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})
}
