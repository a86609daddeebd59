// Package credits gates billable actions behind the credit ledger: it
// resolves operation costs, checks balances, performs the deduction through
// an injected Ledger, and hands the caller a one-shot refund for when the
// paid action fails afterwards.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sceneforge/sceneledger/internal/models"
)

// Ledger is the remote collaborator holding balances and transaction
// history. DeductIfSufficient must be atomic on the collaborator's side:
// either the debit applies in full or it reports the shortfall. The meter
// performs no client-side check-then-act against it.
type Ledger interface {
	Account(ctx context.Context, id uuid.UUID) (*models.Account, error)
	DeductIfSufficient(ctx context.Context, req models.DeductRequest, amount int64) (*models.DeductResponse, error)
	Grant(ctx context.Context, accountID uuid.UUID, amount int64, op models.OperationType, refundOf uuid.UUID) (*models.DeductResponse, error)
}

// BalanceCheck is the advisory pre-check result. HasBalance=true does not
// reserve anything; the transactional deduct remains the source of truth.
type BalanceCheck struct {
	HasBalance bool  `json:"has_balance"`
	Balance    int64 `json:"balance"`
	Bypass     bool  `json:"bypass"`
}

// DeductionResult is what a successful (or bypassed) deduction hands back.
// Refund reverses the exact deducted amount; it is safe to call at most
// once, later calls return ErrAlreadyRefunded without touching the ledger.
type DeductionResult struct {
	CreditsDeducted int64
	Balance         int64
	Transaction     *models.CreditTransaction
	Bypass          bool

	refundOnce sync.Once
	refund     func(context.Context) error
}

// Refund issues the matching credit grant for this deduction. No-op (nil)
// in bypass mode.
func (r *DeductionResult) Refund(ctx context.Context) error {
	if r.refund == nil {
		return nil
	}
	err := ErrAlreadyRefunded
	r.refundOnce.Do(func() {
		err = r.refund(ctx)
	})
	return err
}

// Meter is the credit ledger client.
type Meter struct {
	ledger Ledger
	logger *slog.Logger
}

func NewMeter(ledger Ledger, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{ledger: ledger, logger: logger}
}

// CheckBalance reports whether the account can afford the given cost.
// Unmetered accounts always pass with a zero balance. Fails closed: any
// ledger read error yields HasBalance=false.
func (m *Meter) CheckBalance(ctx context.Context, accountID uuid.UUID, required int64) (BalanceCheck, error) {
	if accountID == uuid.Nil {
		return BalanceCheck{}, ErrUnauthenticated
	}
	acc, err := m.ledger.Account(ctx, accountID)
	if err != nil {
		return BalanceCheck{}, &RemoteError{Op: "balance read", Cause: err}
	}
	if !acc.Metered {
		return BalanceCheck{HasBalance: true, Balance: 0, Bypass: true}, nil
	}
	return BalanceCheck{HasBalance: acc.Balance >= required, Balance: acc.Balance}, nil
}

// Deduct charges the account for the requested operation. Unauthenticated
// and bypass cases short-circuit with no ledger mutation. Otherwise the
// charge goes through the ledger's conditional debit; an insufficient
// balance comes back as *InsufficientBalanceError with the shortfall, any
// other failure as *RemoteError. On success the result carries a bound
// one-shot Refund for the exact amount.
func (m *Meter) Deduct(ctx context.Context, req models.DeductRequest) (*DeductionResult, error) {
	if req.AccountID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if req.Bypass {
		return &DeductionResult{Bypass: true}, nil
	}

	acc, err := m.ledger.Account(ctx, req.AccountID)
	if err != nil {
		return nil, &RemoteError{Op: "account read", Cause: err}
	}
	if !acc.Metered {
		return &DeductionResult{Bypass: true}, nil
	}

	cost := CalculateCost(req.Operation, req.CustomAmount, req.Multiplier)

	resp, err := m.ledger.DeductIfSufficient(ctx, req, cost)
	if err != nil {
		var insufficient *InsufficientBalanceError
		if errors.As(err, &insufficient) {
			return nil, insufficient
		}
		return nil, &RemoteError{Op: "deduct", Cause: err}
	}

	tx := resp.Transaction
	m.logger.Info("credits deducted",
		"account_id", req.AccountID,
		"operation", req.Operation,
		"amount", cost,
		"balance", resp.Balance,
	)

	return &DeductionResult{
		CreditsDeducted: cost,
		Balance:         resp.Balance,
		Transaction:     &tx,
		refund: func(ctx context.Context) error {
			_, err := m.ledger.Grant(ctx, req.AccountID, cost, req.Operation, tx.ID)
			if err != nil {
				return &RemoteError{Op: "refund", Cause: err}
			}
			m.logger.Info("credits refunded",
				"account_id", req.AccountID,
				"operation", req.Operation,
				"amount", cost,
			)
			return nil
		},
	}, nil
}

// ExecuteWithDeduction charges first, then runs op. If the charge fails, op
// never runs. If op fails after a successful charge, the deduction is
// refunded before the error is returned. On success the deduction stands.
func (m *Meter) ExecuteWithDeduction(ctx context.Context, req models.DeductRequest, op func(context.Context) (any, error)) (any, *DeductionResult, error) {
	result, err := m.Deduct(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	out, err := op(ctx)
	if err != nil {
		if rerr := result.Refund(ctx); rerr != nil && rerr != ErrAlreadyRefunded {
			m.logger.Error("refund after failed operation did not apply",
				"account_id", req.AccountID,
				"operation", req.Operation,
				"error", rerr,
			)
		}
		return nil, result, fmt.Errorf("operation failed: %w", err)
	}
	return out, result, nil
}
