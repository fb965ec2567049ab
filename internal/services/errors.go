package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCardNotFound        = errors.New("card not found")
	ErrEntryNotFound       = errors.New("ledger entry not found")
	ErrCardBlocked         = errors.New("card is blocked")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("operation not allowed for role")
	ErrAlreadyVoided       = errors.New("sale already voided")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidItems        = errors.New("invalid cart items")
	ErrWrongType           = errors.New("referenced entry is not a sale")
	ErrCardMismatch        = errors.New("buyer card does not match sale")
	ErrInvalidEntryType    = errors.New("invalid entry type filter")
	ErrBusy                = errors.New("card is busy, retry")
	ErrStorageFailure      = errors.New("storage failure")

	// ErrLockReleased is returned when a card lock is used after its unit ended.
	ErrLockReleased    = errors.New("card lock already released")
	ErrNegativeBalance = errors.New("balance cannot be negative")
)

// InsufficientBalanceError reports the balance available when a debit was rejected
type InsufficientBalanceError struct {
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s", e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

func insufficient(available decimal.Decimal) error {
	return &InsufficientBalanceError{Available: available}
}

// storageErr wraps a driver error so callers can match ErrStorageFailure.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

// IsBusinessError reports failures that are expected outcomes, not faults
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrCardNotFound, ErrEntryNotFound, ErrCardBlocked, ErrInsufficientBalance,
		ErrUnauthorized, ErrAlreadyVoided, ErrInvalidAmount, ErrInvalidItems,
		ErrWrongType, ErrCardMismatch, ErrInvalidEntryType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
