package services

import (
	"context"
	"sync"
	"time"

	"github.com/eventcard/backend/internal/models"
	"github.com/shopspring/decimal"
)

type cardKey struct {
	eventID string
	uid     string
}

// MemoryStore is an in-process Store. Card locks come from a registry keyed
// by (eventId, uid) and writes are staged on the unit until Commit.
type MemoryStore struct {
	mu      sync.RWMutex
	cards   map[cardKey]*models.Card
	entries []models.LedgerEntry
	byID    map[string]int
	voids   map[string]string
	seq     int64

	locks       *lockRegistry
	lockTimeout time.Duration
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		cards:       make(map[cardKey]*models.Card),
		byID:        make(map[string]int),
		voids:       make(map[string]string),
		locks:       newLockRegistry(),
		lockTimeout: lockTimeout,
	}
}

// RegisterCard creates an active card with a zero balance if it is missing.
func (s *MemoryStore) RegisterCard(eventID, uid string) {
	key := cardKey{eventID: eventID, uid: models.NormalizeUID(uid)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCard(key, time.Now().UTC())
}

func (s *MemoryStore) insertCard(key cardKey, now time.Time) {
	if _, ok := s.cards[key]; ok {
		return
	}
	s.cards[key] = &models.Card{
		UID:       key.uid,
		EventID:   key.eventID,
		Balance:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	return &memUnit{
		store:  s,
		held:   make(map[cardKey]*cardMutex),
		staged: make(map[cardKey]*models.Card),
		fresh:  make(map[cardKey]bool),
	}, nil
}

func (s *MemoryStore) GetCard(ctx context.Context, eventID, uid string) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[cardKey{eventID: eventID, uid: uid}]
	if !ok {
		return nil, ErrCardNotFound
	}
	cp := *card
	return &cp, nil
}

func (s *MemoryStore) FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findEntry(eventID, entryID)
}

func (s *MemoryStore) findEntry(eventID, entryID string) (*models.LedgerEntry, error) {
	idx, ok := s.byID[entryID]
	if !ok || s.entries[idx].EventID != eventID {
		return nil, ErrEntryNotFound
	}
	entry := s.entries[idx]
	return &entry, nil
}

// ListEntries returns matching entries newest first. Entries are appended in
// commit order, so walking backwards yields the (timestamp, seq) order.
func (s *MemoryStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []models.LedgerEntry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.EventID != filter.EventID {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.CardUID != "" && e.CardUID != filter.CardUID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		entries = append(entries, e)
		if filter.Limit > 0 && len(entries) == filter.Limit {
			break
		}
	}
	return entries, nil
}

type memUnit struct {
	store   *MemoryStore
	held    map[cardKey]*cardMutex
	staged  map[cardKey]*models.Card
	fresh   map[cardKey]bool
	entries []models.LedgerEntry
	done    bool
}

func (u *memUnit) LockCard(ctx context.Context, eventID, uid string) (*CardLock, error) {
	if u.done {
		return nil, ErrLockReleased
	}

	key := cardKey{eventID: eventID, uid: uid}
	if _, ok := u.held[key]; !ok {
		m, err := u.store.locks.acquire(ctx, key, u.store.lockTimeout)
		if err != nil {
			return nil, err
		}
		u.held[key] = m
	}

	if card, ok := u.staged[key]; ok {
		return &CardLock{Card: *card, owner: u}, nil
	}

	u.store.mu.RLock()
	card, ok := u.store.cards[key]
	var cp models.Card
	if ok {
		cp = *card
	}
	u.store.mu.RUnlock()

	if !ok {
		if !u.fresh[key] {
			return nil, ErrCardNotFound
		}
		now := time.Now().UTC()
		cp = models.Card{UID: uid, EventID: eventID, Balance: decimal.Zero, Active: true, CreatedAt: now, UpdatedAt: now}
	}
	return &CardLock{Card: cp, owner: u}, nil
}

func (u *memUnit) EnsureCard(ctx context.Context, eventID, uid string) error {
	if u.done {
		return ErrLockReleased
	}
	u.fresh[cardKey{eventID: eventID, uid: uid}] = true
	return nil
}

func (u *memUnit) SetBalance(ctx context.Context, lock *CardLock, newBalance decimal.Decimal) error {
	if err := u.checkLock(lock); err != nil {
		return err
	}
	if newBalance.IsNegative() {
		return ErrNegativeBalance
	}

	lock.Card.Balance = newBalance
	lock.Card.UpdatedAt = time.Now().UTC()
	u.stage(lock)
	return nil
}

func (u *memUnit) SetActive(ctx context.Context, lock *CardLock, active bool) error {
	if err := u.checkLock(lock); err != nil {
		return err
	}

	lock.Card.Active = active
	lock.Card.UpdatedAt = time.Now().UTC()
	u.stage(lock)
	return nil
}

func (u *memUnit) stage(lock *CardLock) {
	cp := lock.Card
	u.staged[cardKey{eventID: cp.EventID, uid: cp.UID}] = &cp
}

func (u *memUnit) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if u.done {
		return ErrLockReleased
	}
	if entry.Type == models.EntryVoid && entry.ReferenceEntryID != nil {
		if _, err := u.FindVoidFor(ctx, *entry.ReferenceEntryID); err == nil {
			return ErrAlreadyVoided
		}
	}
	u.entries = append(u.entries, *entry)
	return nil
}

func (u *memUnit) FindEntry(ctx context.Context, eventID, entryID string) (*models.LedgerEntry, error) {
	for i := range u.entries {
		if u.entries[i].ID == entryID && u.entries[i].EventID == eventID {
			entry := u.entries[i]
			return &entry, nil
		}
	}
	return u.store.FindEntry(ctx, eventID, entryID)
}

func (u *memUnit) FindVoidFor(ctx context.Context, saleID string) (*models.LedgerEntry, error) {
	for i := range u.entries {
		e := u.entries[i]
		if e.Type == models.EntryVoid && e.ReferenceEntryID != nil && *e.ReferenceEntryID == saleID {
			return &e, nil
		}
	}

	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	voidID, ok := u.store.voids[saleID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	entry := u.store.entries[u.store.byID[voidID]]
	return &entry, nil
}

func (u *memUnit) Commit() error {
	if u.done {
		return ErrLockReleased
	}
	defer u.release()

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range u.entries {
		if e.Type == models.EntryVoid && e.ReferenceEntryID != nil {
			if _, dup := s.voids[*e.ReferenceEntryID]; dup {
				return ErrAlreadyVoided
			}
		}
	}

	now := time.Now().UTC()
	for key := range u.fresh {
		s.insertCard(key, now)
	}
	for key, card := range u.staged {
		cp := *card
		s.cards[key] = &cp
	}
	for _, e := range u.entries {
		s.seq++
		e.Seq = s.seq
		s.byID[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
		if e.Type == models.EntryVoid && e.ReferenceEntryID != nil {
			s.voids[*e.ReferenceEntryID] = e.ID
		}
	}
	return nil
}

func (u *memUnit) Rollback() error {
	if u.done {
		return nil
	}
	u.release()
	return nil
}

func (u *memUnit) release() {
	u.done = true
	for key, m := range u.held {
		u.store.locks.release(key, m)
	}
	u.held = nil
}

func (u *memUnit) checkLock(lock *CardLock) error {
	if u.done || lock == nil || lock.owner != u {
		return ErrLockReleased
	}
	return nil
}

// lockRegistry hands out one mutex per card. Entries are created on first
// use and dropped once nobody holds or waits for them.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[cardKey]*cardMutex
}

type cardMutex struct {
	ch   chan struct{}
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[cardKey]*cardMutex)}
}

func (r *lockRegistry) acquire(ctx context.Context, key cardKey, timeout time.Duration) (*cardMutex, error) {
	r.mu.Lock()
	m, ok := r.locks[key]
	if !ok {
		m = &cardMutex{ch: make(chan struct{}, 1)}
		r.locks[key] = m
	}
	m.refs++
	r.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case m.ch <- struct{}{}:
		return m, nil
	case <-expired:
	case <-ctx.Done():
	}
	r.drop(key, m)
	return nil, ErrBusy
}

func (r *lockRegistry) release(key cardKey, m *cardMutex) {
	<-m.ch
	r.drop(key, m)
}

func (r *lockRegistry) drop(key cardKey, m *cardMutex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(r.locks, key)
	}
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
