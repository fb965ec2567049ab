package services

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/eventcard/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptService_ReceiptPNG(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(t)
	store.RegisterCard(testEvent, "CARD1")
	res, err := engine.Recharge(ctx, cashier, testEvent, models.RechargeRequest{CardUID: "CARD1", Amount: dec("15")})
	require.NoError(t, err)

	receipts := NewReceiptService(store)

	t.Run("renders a png", func(t *testing.T) {
		data, err := receipts.ReceiptPNG(ctx, cashier, testEvent, res.Entry.ID)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 256, img.Bounds().Dx())
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := receipts.ReceiptPNG(ctx, cashier, testEvent, "missing")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("other event", func(t *testing.T) {
		_, err := receipts.ReceiptPNG(ctx, cashier, "evt-2", res.Entry.ID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
