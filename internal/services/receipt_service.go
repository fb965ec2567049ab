package services

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"

	"github.com/eventcard/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

type receiptPayload struct {
	EntryID   string           `json:"entryId"`
	EventID   string           `json:"eventId"`
	CardUID   string           `json:"cardUid"`
	Type      models.EntryType `json:"type"`
	Amount    string           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
}

// ReceiptService renders a ledger entry as a QR code terminals can print.
type ReceiptService struct {
	ledger LedgerReader
	size   int
}

func NewReceiptService(ledger LedgerReader) *ReceiptService {
	return &ReceiptService{
		ledger: ledger,
		size:   256,
	}
}

// ReceiptPNG returns the PNG receipt for one entry of the actor's event.
func (s *ReceiptService) ReceiptPNG(ctx context.Context, actor models.Actor, eventID, entryID string) ([]byte, error) {
	if err := scopeActor(actor, eventID); err != nil {
		return nil, err
	}

	entry, err := s.ledger.FindEntry(ctx, eventID, entryID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(receiptPayload{
		EntryID:   entry.ID,
		EventID:   entry.EventID,
		CardUID:   entry.CardUID,
		Type:      entry.Type,
		Amount:    entry.Amount.StringFixed(2),
		Timestamp: entry.Timestamp.Unix(),
	})
	if err != nil {
		return nil, err
	}

	qr, err := qrcode.New(string(data), qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
