package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eventcard/backend/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationHelper_Requests(t *testing.T) {
	vh := NewValidationHelper()

	fieldTags := func(t *testing.T, err error) map[string]string {
		t.Helper()
		var fieldErrs validator.ValidationErrors
		require.ErrorAs(t, err, &fieldErrs)
		tags := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			tags[fe.Namespace()] = fe.Tag()
		}
		return tags
	}

	t.Run("sale with amount", func(t *testing.T) {
		req := models.SaleRequest{CardUID: "04A1B2C3", Amount: amountPtr("12.50")}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("sale without card", func(t *testing.T) {
		req := models.SaleRequest{Amount: amountPtr("5")}
		assert.Equal(t, map[string]string{"SaleRequest.CardUID": "required"}, fieldTags(t, vh.ValidateStruct(&req)))
	})

	t.Run("card uid too long", func(t *testing.T) {
		req := models.RechargeRequest{CardUID: strings.Repeat("A", 65), Amount: dec("5")}
		assert.Equal(t, map[string]string{"RechargeRequest.CardUID": "max"}, fieldTags(t, vh.ValidateStruct(&req)))
	})

	t.Run("cart items are validated one by one", func(t *testing.T) {
		req := models.SaleRequest{
			CardUID: "04A1B2C3",
			Items: []models.CartItem{
				{ProductID: "p-1", Quantity: 1},
				{ProductID: "", Quantity: 2},
				{ProductID: "p-3", Quantity: 0},
			},
		}
		assert.Equal(t, map[string]string{
			"SaleRequest.Items[1].ProductID": "required",
			"SaleRequest.Items[2].Quantity":  "gt",
		}, fieldTags(t, vh.ValidateStruct(&req)))
	})

	t.Run("pointer amount is still checked when present", func(t *testing.T) {
		req := models.SaleRequest{CardUID: "04A1B2C3", Amount: amountPtr("0.001")}
		assert.Equal(t, map[string]string{"SaleRequest.Amount": "money"}, fieldTags(t, vh.ValidateStruct(&req)))
	})

	t.Run("void request", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&models.VoidRequest{}))
		assert.NoError(t, vh.ValidateStruct(&models.VoidRequest{BuyerCardUID: "04A1B2C3", Reason: "wrong item"}))

		req := models.VoidRequest{Reason: strings.Repeat("x", 201)}
		assert.Equal(t, map[string]string{"VoidRequest.Reason": "max"}, fieldTags(t, vh.ValidateStruct(&req)))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "card is busy, retry", http.StatusServiceUnavailable, nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "card is busy, retry", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("field errors become details", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&models.RefundRequest{Amount: dec("-1")})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Equal(t, map[string]string{
			"CardUID": "Field Validation Failed on 'required' tag",
			"Amount":  "Field Validation Failed on 'money' tag",
		}, response.Details)
	})

	t.Run("wrapped validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := fmt.Errorf("decode sale: %w", vh.ValidateStruct(&models.SaleRequest{}))

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Details, "CardUID")
	})
}

func TestSendJSON(t *testing.T) {
	w := httptest.NewRecorder()
	SendJSON(w, http.StatusCreated, models.TransactionResult{NewBalance: dec("40")})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"newBalance":"40"}`, w.Body.String())
}

func TestValidationHelper_Money(t *testing.T) {
	vh := NewValidationHelper()

	tests := []struct {
		name   string
		amount string
		valid  bool
	}{
		{"whole amount", "100", true},
		{"two decimals", "12.50", true},
		{"three decimals", "1.005", false},
		{"zero", "0", false},
		{"negative", "-5", false},
		{"above column precision", "10000000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := models.RechargeRequest{
				CardUID: "04A1B2C3",
				Amount:  decimal.RequireFromString(tt.amount),
			}
			err := vh.ValidateStruct(&req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var fieldErrs validator.ValidationErrors
			assert.ErrorAs(t, err, &fieldErrs)
			assert.Equal(t, "money", fieldErrs[0].Tag())
		})
	}

	t.Run("sale without amount skips money check", func(t *testing.T) {
		req := models.SaleRequest{
			CardUID: "04A1B2C3",
			Items:   []models.CartItem{{ProductID: "p-1", Quantity: 2}},
		}
		assert.NoError(t, vh.ValidateStruct(&req))
	})
}
