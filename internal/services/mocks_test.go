package services

import (
	"context"

	"github.com/eventcard/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Begin(ctx context.Context) (UnitOfWork, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(UnitOfWork), args.Error(1)
}

func (m *MockStore) GetCard(ctx context.Context, eventID, uid string) (*models.Card, error) {
	args := m.Called(ctx, eventID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Card), args.Error(1)
}

func (m *MockStore) FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, eventID, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

type MockUnit struct {
	mock.Mock
}

func (m *MockUnit) LockCard(ctx context.Context, eventID, uid string) (*CardLock, error) {
	args := m.Called(ctx, eventID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	lock := args.Get(0).(*CardLock)
	lock.owner = m
	return lock, args.Error(1)
}

func (m *MockUnit) EnsureCard(ctx context.Context, eventID, uid string) error {
	args := m.Called(ctx, eventID, uid)
	return args.Error(0)
}

func (m *MockUnit) SetBalance(ctx context.Context, lock *CardLock, newBalance decimal.Decimal) error {
	args := m.Called(ctx, lock, newBalance)
	return args.Error(0)
}

func (m *MockUnit) SetActive(ctx context.Context, lock *CardLock, active bool) error {
	args := m.Called(ctx, lock, active)
	return args.Error(0)
}

func (m *MockUnit) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockUnit) FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, eventID, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockUnit) FindVoidFor(ctx context.Context, saleID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, saleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockUnit) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnit) Rollback() error {
	args := m.Called()
	return args.Error(0)
}
