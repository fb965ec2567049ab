package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eventcard/backend/internal/config"
	"github.com/eventcard/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// TransactionService is the transaction engine. Every mutating operation is
// one atomic unit: authorize, lock the card, validate, write balance and
// ledger entry, commit. Any failure rolls the whole unit back.
type TransactionService struct {
	store     Store
	catalog   ProductCatalog
	publisher Publisher
	audit     *AuditLogger
	cfg       *config.LedgerConfig
	now       func() time.Time
}

func NewTransactionService(store Store, catalog ProductCatalog, publisher Publisher, audit *AuditLogger, cfg *config.LedgerConfig) *TransactionService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if audit == nil {
		audit = NewAuditLogger(nil)
	}
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &TransactionService{
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		audit:     audit,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sale debits a card for a fixed amount or for a cart priced from the catalog.
func (ts *TransactionService) Sale(ctx context.Context, actor models.Actor, eventID string, req models.SaleRequest) (*models.TransactionResult, error) {
	uid := models.NormalizeUID(req.CardUID)
	if err := authorizeActor(actor, eventID, OpSale); err != nil {
		return ts.fail(OpSale, actor, eventID, uid, err)
	}

	amount, detail, err := ts.priceSale(ctx, eventID, req)
	if err != nil {
		return ts.fail(OpSale, actor, eventID, uid, err)
	}

	res, err := ts.runUnit(ctx, func(unit UnitOfWork) (*models.TransactionResult, error) {
		lock, err := unit.LockCard(ctx, eventID, uid)
		if err != nil {
			return nil, err
		}
		if !lock.Card.Active {
			return nil, ErrCardBlocked
		}
		if lock.Card.Balance.LessThan(amount) {
			return nil, insufficient(lock.Card.Balance)
		}
		return ts.post(ctx, unit, lock, actor, models.EntrySale, amount, detail, nil)
	})
	return ts.finish(ctx, OpSale, actor, eventID, uid, res, err)
}

// Recharge credits a card. With auto-registration enabled an unknown card is
// created in the same unit.
func (ts *TransactionService) Recharge(ctx context.Context, actor models.Actor, eventID string, req models.RechargeRequest) (*models.TransactionResult, error) {
	uid := models.NormalizeUID(req.CardUID)
	if err := authorizeActor(actor, eventID, OpRecharge); err != nil {
		return ts.fail(OpRecharge, actor, eventID, uid, err)
	}
	if err := validateAmount(req.Amount); err != nil {
		return ts.fail(OpRecharge, actor, eventID, uid, err)
	}

	detail := req.Detail
	if detail == "" {
		detail = "Recharge"
	}

	res, err := ts.runUnit(ctx, func(unit UnitOfWork) (*models.TransactionResult, error) {
		if ts.cfg.AutoRegisterOnRecharge {
			if err := unit.EnsureCard(ctx, eventID, uid); err != nil {
				return nil, err
			}
		}
		lock, err := unit.LockCard(ctx, eventID, uid)
		if err != nil {
			return nil, err
		}
		if !lock.Card.Active {
			return nil, ErrCardBlocked
		}
		return ts.post(ctx, unit, lock, actor, models.EntryReload, req.Amount, detail, nil)
	})
	return ts.finish(ctx, OpRecharge, actor, eventID, uid, res, err)
}

// Refund returns part of the balance to cash. Blocked cards can still be
// refunded so their holders get their money back.
func (ts *TransactionService) Refund(ctx context.Context, actor models.Actor, eventID string, req models.RefundRequest) (*models.TransactionResult, error) {
	uid := models.NormalizeUID(req.CardUID)
	if err := authorizeActor(actor, eventID, OpRefund); err != nil {
		return ts.fail(OpRefund, actor, eventID, uid, err)
	}
	if err := validateAmount(req.Amount); err != nil {
		return ts.fail(OpRefund, actor, eventID, uid, err)
	}

	detail := req.Detail
	if detail == "" {
		detail = fmt.Sprintf("Refund of %s", req.Amount.StringFixed(2))
	}

	res, err := ts.runUnit(ctx, func(unit UnitOfWork) (*models.TransactionResult, error) {
		lock, err := unit.LockCard(ctx, eventID, uid)
		if err != nil {
			return nil, err
		}
		if lock.Card.Balance.LessThan(req.Amount) {
			return nil, insufficient(lock.Card.Balance)
		}
		return ts.post(ctx, unit, lock, actor, models.EntryRefund, req.Amount, detail, nil)
	})
	return ts.finish(ctx, OpRefund, actor, eventID, uid, res, err)
}

// RefundTotal refunds the whole balance, leaving the card at zero.
func (ts *TransactionService) RefundTotal(ctx context.Context, actor models.Actor, eventID string, req models.RefundTotalRequest) (*models.TransactionResult, error) {
	uid := models.NormalizeUID(req.CardUID)
	if err := authorizeActor(actor, eventID, OpRefundTotal); err != nil {
		return ts.fail(OpRefundTotal, actor, eventID, uid, err)
	}

	res, err := ts.runUnit(ctx, func(unit UnitOfWork) (*models.TransactionResult, error) {
		lock, err := unit.LockCard(ctx, eventID, uid)
		if err != nil {
			return nil, err
		}
		balance := lock.Card.Balance
		if !balance.IsPositive() {
			return nil, insufficient(balance)
		}
		detail := req.Detail
		if detail == "" {
			detail = fmt.Sprintf("Full refund of %s", balance.StringFixed(2))
		}
		return ts.post(ctx, unit, lock, actor, models.EntryRefund, balance, detail, nil)
	})
	return ts.finish(ctx, OpRefundTotal, actor, eventID, uid, res, err)
}

// VoidSale reverses a SALE entry by crediting its amount back. A sale can be
// voided once; the void references it.
func (ts *TransactionService) VoidSale(ctx context.Context, actor models.Actor, eventID, saleEntryID string, req models.VoidRequest) (*models.TransactionResult, error) {
	if err := authorizeActor(actor, eventID, OpVoidSale); err != nil {
		return ts.fail(OpVoidSale, actor, eventID, "", err)
	}

	var cardUID string
	res, err := ts.runUnit(ctx, func(unit UnitOfWork) (*models.TransactionResult, error) {
		sale, err := unit.FindEntry(ctx, eventID, saleEntryID)
		if err != nil {
			return nil, err
		}
		cardUID = sale.CardUID
		if sale.Type != models.EntrySale {
			return nil, ErrWrongType
		}
		if req.BuyerCardUID != "" && models.NormalizeUID(req.BuyerCardUID) != sale.CardUID {
			return nil, ErrCardMismatch
		}

		lock, err := unit.LockCard(ctx, eventID, sale.CardUID)
		if err != nil {
			return nil, err
		}

		// checked under the card lock so two voids of one sale serialize
		if _, err := unit.FindVoidFor(ctx, sale.ID); err == nil {
			return nil, ErrAlreadyVoided
		} else if !errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}

		detail := fmt.Sprintf("Void of entry #%s, authorized by %s", sale.ID, actor.ID)
		if req.Reason != "" {
			detail += ": " + req.Reason
		}
		ref := sale.ID
		return ts.post(ctx, unit, lock, actor, models.EntryVoid, sale.Amount.Abs(), detail, &ref)
	})
	return ts.finish(ctx, OpVoidSale, actor, eventID, cardUID, res, err)
}

// BlockCard stops sales and recharges on a card. The balance is untouched.
func (ts *TransactionService) BlockCard(ctx context.Context, actor models.Actor, eventID, uid string) (*models.CardView, error) {
	return ts.setActive(ctx, OpBlockCard, actor, eventID, uid, false)
}

func (ts *TransactionService) UnblockCard(ctx context.Context, actor models.Actor, eventID, uid string) (*models.CardView, error) {
	return ts.setActive(ctx, OpUnblockCard, actor, eventID, uid, true)
}

func (ts *TransactionService) setActive(ctx context.Context, op Operation, actor models.Actor, eventID, uid string, active bool) (*models.CardView, error) {
	uid = models.NormalizeUID(uid)
	if err := authorizeActor(actor, eventID, op); err != nil {
		ts.audit.LogError(op, actor, eventID, uid, err)
		return nil, err
	}

	var card models.Card
	_, err := ts.runUnit(ctx, func(unit UnitOfWork) (*models.TransactionResult, error) {
		lock, err := unit.LockCard(ctx, eventID, uid)
		if err != nil {
			return nil, err
		}
		if err := unit.SetActive(ctx, lock, active); err != nil {
			return nil, err
		}
		card = lock.Card
		return &models.TransactionResult{NewBalance: card.Balance}, nil
	})
	if err != nil {
		ts.audit.LogError(op, actor, eventID, uid, err)
		return nil, err
	}

	ts.audit.LogOperation(op, actor, eventID, uid, card.Status())
	return &models.CardView{
		UID:     card.UID,
		Balance: card.Balance,
		Status:  card.Status(),
		Exists:  true,
	}, nil
}

// GetCard reads a card without locking. Unknown cards report Exists=false.
func (ts *TransactionService) GetCard(ctx context.Context, actor models.Actor, eventID, uid string) (*models.CardView, error) {
	if err := scopeActor(actor, eventID); err != nil {
		return nil, err
	}

	uid = models.NormalizeUID(uid)
	card, err := ts.store.GetCard(ctx, eventID, uid)
	if errors.Is(err, ErrCardNotFound) {
		return &models.CardView{UID: uid, Balance: decimal.Zero, Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &models.CardView{
		UID:     card.UID,
		Balance: card.Balance,
		Status:  card.Status(),
		Exists:  true,
	}, nil
}

func (ts *TransactionService) priceSale(ctx context.Context, eventID string, req models.SaleRequest) (decimal.Decimal, string, error) {
	if len(req.Items) > 0 {
		if req.Amount != nil {
			return decimal.Zero, "", ErrInvalidAmount
		}
		total, detail, err := priceCart(ctx, ts.catalog, eventID, req.Items)
		if err != nil {
			return decimal.Zero, "", err
		}
		if err := validateAmount(total); err != nil {
			return decimal.Zero, "", err
		}
		data, err := json.Marshal(detail)
		if err != nil {
			return decimal.Zero, "", err
		}
		return total, string(data), nil
	}

	if req.Amount == nil {
		return decimal.Zero, "", ErrInvalidAmount
	}
	if err := validateAmount(*req.Amount); err != nil {
		return decimal.Zero, "", err
	}
	return *req.Amount, req.Detail, nil
}

// runUnit executes fn inside one unit. The deferred Rollback releases the
// card lock on every exit path, panics included.
func (ts *TransactionService) runUnit(ctx context.Context, fn func(unit UnitOfWork) (*models.TransactionResult, error)) (*models.TransactionResult, error) {
	unit, err := ts.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unit.Rollback()

	res, err := fn(unit)
	if err != nil {
		return nil, err
	}
	if err := unit.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// post writes the new balance and the matching signed entry through the
// unit, keeping balance equal to the sum of the card's entries.
func (ts *TransactionService) post(ctx context.Context, unit UnitOfWork, lock *CardLock, actor models.Actor, entryType models.EntryType, magnitude decimal.Decimal, detail string, ref *string) (*models.TransactionResult, error) {
	signed := entryType.Signed(magnitude)
	newBalance := lock.Card.Balance.Add(signed)
	if newBalance.IsNegative() {
		return nil, insufficient(lock.Card.Balance)
	}
	if newBalance.GreaterThan(maxAmount) {
		return nil, ErrInvalidAmount
	}

	if err := unit.SetBalance(ctx, lock, newBalance); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:               uuid.NewString(),
		EventID:          lock.Card.EventID,
		CardUID:          lock.Card.UID,
		Type:             entryType,
		Amount:           signed,
		ActorID:          actor.ID,
		Detail:           detail,
		ReferenceEntryID: ref,
		Timestamp:        ts.now(),
	}
	if err := unit.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	return &models.TransactionResult{
		NewBalance: newBalance,
		Entry:      entry,
	}, nil
}

func (ts *TransactionService) finish(ctx context.Context, op Operation, actor models.Actor, eventID, uid string, res *models.TransactionResult, err error) (*models.TransactionResult, error) {
	if err != nil {
		return ts.fail(op, actor, eventID, uid, err)
	}

	ts.audit.LogEntry(op, res.Entry)
	ts.publish(ctx, res.Entry)
	return res, nil
}

func (ts *TransactionService) fail(op Operation, actor models.Actor, eventID, uid string, err error) (*models.TransactionResult, error) {
	ts.audit.LogError(op, actor, eventID, uid, err)
	if !IsBusinessError(err) && !errors.Is(err, ErrBusy) {
		log.WithFields(log.Fields{
			"op":       op,
			"event_id": eventID,
			"card_uid": uid,
		}).WithError(err).Error("[ENGINE] operation failed")
	}
	return nil, err
}

// publish runs after commit on a detached context; the entry is durable
// whether or not the announcement goes out.
func (ts *TransactionService) publish(ctx context.Context, entry *models.LedgerEntry) {
	timeout := ts.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := ts.publisher.Publish(pubCtx, entry); err != nil {
		log.Printf("[PUBLISH] failed to publish entry %s: %v", entry.ID, err)
	}
}

// maxAmount is the largest value a NUMERIC(12,2) column holds. It bounds
// both single amounts and card balances.
var maxAmount = decimal.RequireFromString("9999999999.99")

// validateAmount accepts positive amounts with at most two decimal places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) || amount.GreaterThan(maxAmount) {
		return ErrInvalidAmount
	}
	return nil
}
