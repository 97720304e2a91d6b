package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	walletdomain "github.com/smallbiznis/billingportal/internal/wallet/domain"
	"go.uber.org/zap"
)

// WalletWriter persists an absolute wallet balance.
type WalletWriter interface {
	UpdateWallet(ctx context.Context, userID, walletCents int64) (accountdomain.UserProfile, error)
}

// Recorder counts top-up outcomes.
type Recorder interface {
	RecordWalletTopUp(ctx context.Context, outcome string)
}

type Service struct {
	log      *zap.Logger
	recorder Recorder
}

func NewService(log *zap.Logger, recorder Recorder) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log.Named("wallet"), recorder: recorder}
}

var hundred = decimal.NewFromInt(100)

const (
	maxAmountLen = 64
	// Exponent window checked before any arithmetic, which rescales.
	minAmountExp = -40
	maxAmountExp = 20
)

// ParseAmountCents converts a dollar amount typed by a user into cents.
// The input is read as an exact decimal and rounded half away from zero at
// the cent: "12.345" is 1235 and "0.004" is 0, which is rejected.
func ParseAmountCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, walletdomain.ErrAmountRequired
	}
	if len(raw) > maxAmountLen {
		return 0, walletdomain.ErrAmountNotNumeric
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, walletdomain.ErrAmountNotNumeric
	}
	switch {
	case amount.Sign() <= 0, amount.Exponent() < minAmountExp:
		return 0, walletdomain.ErrAmountNotPositive
	case amount.Exponent() > maxAmountExp:
		return 0, walletdomain.ErrBalanceOverflow
	}
	cents := amount.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return 0, walletdomain.ErrAmountNotPositive
	}
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, walletdomain.ErrBalanceOverflow
	}
	return cents.IntPart(), nil
}

// Propose validates raw against profile and computes the new absolute balance.
func Propose(profile *accountdomain.UserProfile, raw string) (walletdomain.Proposal, error) {
	cents, err := ParseAmountCents(raw)
	if err != nil {
		return walletdomain.Proposal{}, err
	}
	if profile == nil {
		return walletdomain.Proposal{}, walletdomain.ErrProfileNotLoaded
	}
	if cents > math.MaxInt64-profile.WalletCents {
		return walletdomain.Proposal{}, walletdomain.ErrBalanceOverflow
	}
	return walletdomain.Proposal{
		UserID:          profile.ID,
		CurrentCents:    profile.WalletCents,
		AmountCents:     cents,
		NewBalanceCents: profile.WalletCents + cents,
	}, nil
}

// TopUp writes current+amount as the new balance and returns the profile the
// server echoes back. Invalid input never reaches the writer.
//
// The balance is computed from the caller's copy of the profile, so two
// concurrent top-ups from the same snapshot overwrite each other.
func (s *Service) TopUp(ctx context.Context, writer WalletWriter, profile *accountdomain.UserProfile, raw string) (walletdomain.Result, error) {
	proposal, err := Propose(profile, raw)
	if err != nil {
		return walletdomain.Result{}, err
	}

	updated, err := writer.UpdateWallet(ctx, proposal.UserID, proposal.NewBalanceCents)
	if err != nil {
		s.record(ctx, "failure")
		s.log.Warn("wallet top-up failed",
			zap.Int64("user_id", proposal.UserID),
			zap.Int64("amount_cents", proposal.AmountCents),
			zap.Error(err),
		)
		return walletdomain.Result{}, err
	}

	s.record(ctx, "success")
	s.log.Info("wallet topped up",
		zap.Int64("user_id", proposal.UserID),
		zap.Int64("amount_cents", proposal.AmountCents),
		zap.Int64("wallet_cents", updated.WalletCents),
	)
	return walletdomain.Result{Proposal: proposal, Profile: updated}, nil
}

// IsValidationError reports errors raised before any network call.
func IsValidationError(err error) bool {
	return errors.Is(err, walletdomain.ErrAmountRequired) ||
		errors.Is(err, walletdomain.ErrAmountNotNumeric) ||
		errors.Is(err, walletdomain.ErrAmountNotPositive) ||
		errors.Is(err, walletdomain.ErrBalanceOverflow)
}

func (s *Service) record(ctx context.Context, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordWalletTopUp(ctx, outcome)
	}
}
