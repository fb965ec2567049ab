package models

import "github.com/shopspring/decimal"

// CartItem is a product and quantity scanned at the terminal
type CartItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// SaleRequest carries either a fixed amount or a cart of items
type SaleRequest struct {
	CardUID string           `json:"cardUid" validate:"required,max=64"`
	Amount  *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,money"`
	Items   []CartItem       `json:"items,omitempty" validate:"omitempty,max=100,dive"`
	Detail  string           `json:"detail" validate:"max=500"`
}

// RechargeRequest loads money onto a card
type RechargeRequest struct {
	CardUID string          `json:"cardUid" validate:"required,max=64"`
	Amount  decimal.Decimal `json:"amount" validate:"money"`
	Detail  string          `json:"detail" validate:"max=500"`
}

// RefundRequest returns part of a card's balance to cash
type RefundRequest struct {
	CardUID string          `json:"cardUid" validate:"required,max=64"`
	Amount  decimal.Decimal `json:"amount" validate:"money"`
	Detail  string          `json:"detail" validate:"max=500"`
}

// RefundTotalRequest returns a card's whole balance to cash
type RefundTotalRequest struct {
	CardUID string `json:"cardUid" validate:"required,max=64"`
	Detail  string `json:"detail" validate:"max=500"`
}

// VoidRequest reverses a sale; BuyerCardUID, when set, must match the sale's card
type VoidRequest struct {
	BuyerCardUID string `json:"buyerCardUid,omitempty" validate:"max=64"`
	Reason       string `json:"reason,omitempty" validate:"max=200"`
}

// TransactionResult is returned by every mutating operation
type TransactionResult struct {
	NewBalance decimal.Decimal `json:"newBalance"`
	Entry      *LedgerEntry    `json:"entry,omitempty"`
}
