// Package domain contains wallet top-up types and errors.
package domain

import (
	"errors"

	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
)

var (
	ErrAmountRequired    = errors.New("amount is required")
	ErrAmountNotNumeric  = errors.New("amount must be a number")
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrProfileNotLoaded  = errors.New("profile not loaded")
	ErrBalanceOverflow   = errors.New("wallet balance out of range")
)

// AmountField names the form field validation errors attach to.
const AmountField = "amount"

// Proposal is the absolute balance a top-up will write.
type Proposal struct {
	UserID          int64
	CurrentCents    int64
	AmountCents     int64
	NewBalanceCents int64
}

// Result is the outcome of an accepted top-up.
type Result struct {
	Proposal Proposal
	Profile  accountdomain.UserProfile
}
