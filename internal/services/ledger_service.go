package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/eventcard/backend/internal/models"
	"github.com/shopspring/decimal"
)

const unitemizedProduct = "Unitemized sale"

// LedgerService serves history and reporting reads. They take no card locks
// and may lag behind a unit that is still open.
type LedgerService struct {
	ledger       LedgerReader
	historyLimit int
}

func NewLedgerService(ledger LedgerReader, historyLimit int) *LedgerService {
	return &LedgerService{
		ledger:       ledger,
		historyLimit: historyLimit,
	}
}

// CardHistory lists a card's entries newest first; ties on timestamp keep
// append order.
func (s *LedgerService) CardHistory(ctx context.Context, actor models.Actor, eventID, uid string) ([]models.LedgerEntry, error) {
	if err := scopeActor(actor, eventID); err != nil {
		return nil, err
	}
	return s.ledger.ListEntries(ctx, models.EntryFilter{
		EventID: eventID,
		CardUID: models.NormalizeUID(uid),
		Limit:   s.historyLimit,
	})
}

// ListEntries lists event entries. Sellers and cashiers only see their own.
func (s *LedgerService) ListEntries(ctx context.Context, actor models.Actor, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	if err := scopeActor(actor, filter.EventID); err != nil {
		return nil, err
	}
	if actor.Role != models.RoleManager && actor.Role != models.RoleAdministrator {
		filter.ActorID = actor.ID
	}
	if filter.CardUID != "" {
		filter.CardUID = models.NormalizeUID(filter.CardUID)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, ErrInvalidEntryType
	}
	if filter.Limit <= 0 || filter.Limit > s.historyLimit {
		filter.Limit = s.historyLimit
	}
	return s.ledger.ListEntries(ctx, filter)
}

// SalesSummary aggregates the actor's sales of one day per product. Voided
// sales are left out.
func (s *LedgerService) SalesSummary(ctx context.Context, actor models.Actor, eventID string, day time.Time) ([]models.ProductSummary, error) {
	if err := scopeActor(actor, eventID); err != nil {
		return nil, err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	sales, err := s.ledger.ListEntries(ctx, models.EntryFilter{
		EventID: eventID,
		ActorID: actor.ID,
		Type:    models.EntrySale,
		Since:   start,
	})
	if err != nil {
		return nil, err
	}

	voids, err := s.ledger.ListEntries(ctx, models.EntryFilter{
		EventID: eventID,
		Type:    models.EntryVoid,
		Since:   start,
	})
	if err != nil {
		return nil, err
	}
	voided := make(map[string]bool, len(voids))
	for _, v := range voids {
		if v.ReferenceEntryID != nil {
			voided[*v.ReferenceEntryID] = true
		}
	}

	byName := make(map[string]*models.ProductSummary)
	add := func(name string, qty int, amount decimal.Decimal) {
		sum, ok := byName[name]
		if !ok {
			sum = &models.ProductSummary{ProductName: name, Amount: decimal.Zero}
			byName[name] = sum
		}
		sum.Qty += qty
		sum.Amount = sum.Amount.Add(amount)
	}

	for _, sale := range sales {
		if !sale.Timestamp.Before(end) || voided[sale.ID] {
			continue
		}

		var detail models.SaleDetail
		if err := json.Unmarshal([]byte(sale.Detail), &detail); err != nil || len(detail.Items) == 0 {
			add(unitemizedProduct, 1, sale.Amount.Abs())
			continue
		}
		for _, item := range detail.Items {
			add(item.Name, item.Qty, item.Price.Mul(decimal.NewFromInt(int64(item.Qty))))
		}
	}

	summary := make([]models.ProductSummary, 0, len(byName))
	for _, sum := range byName {
		summary = append(summary, *sum)
	}
	sort.Slice(summary, func(i, j int) bool {
		return summary[i].ProductName < summary[j].ProductName
	})
	return summary, nil
}
