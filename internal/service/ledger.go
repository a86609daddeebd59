// Package service implements the ledger collaborator on Postgres. All
// balance mutations run inside a transaction that locks the account row, so
// "deduct if balance >= N" is atomic on the database side and the balance
// can never go negative under concurrent deducts.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sceneforge/sceneledger/internal/credits"
	"github.com/sceneforge/sceneledger/internal/models"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrIdempotencyConflict = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

// DefaultGrant is the starting balance for an implicitly created account.
const DefaultGrant int64 = 100

type LedgerService struct {
	db *pgxpool.Pool
}

func NewLedgerService(db *pgxpool.Pool) *LedgerService {
	return &LedgerService{db: db}
}

// Account fetches an account, creating it with the default grant on first
// read.
func (s *LedgerService) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acc models.Account
	err := s.db.QueryRow(ctx,
		"SELECT id, display_name, balance, metered, created_at FROM accounts WHERE id = $1",
		id).Scan(&acc.ID, &acc.DisplayName, &acc.Balance, &acc.Metered, &acc.CreatedAt)
	if err == nil {
		return &acc, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	return s.createWithGrant(ctx, id)
}

func (s *LedgerService) createWithGrant(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var acc models.Account
	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (id, display_name, balance, metered)
		 VALUES ($1, '', $2, TRUE)
		 ON CONFLICT (id) DO UPDATE SET id = accounts.id
		 RETURNING id, display_name, balance, metered, created_at`,
		id, DefaultGrant,
	).Scan(&acc.ID, &acc.DisplayName, &acc.Balance, &acc.Metered, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("account create failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_transactions (id, account_id, tx_type, operation, amount, balance_after)
		 VALUES ($1, $2, $3, '', $4, $5)`,
		uuid.New(), acc.ID, models.TxGrant, DefaultGrant, acc.Balance,
	)
	if err != nil {
		return nil, fmt.Errorf("grant insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &acc, nil
}

// DeductIfSufficient debits the account by amount, or reports the shortfall.
// The account row is locked for the duration of the transaction. A reused
// idempotency key replays the recorded transaction instead of charging
// again.
func (s *LedgerService) DeductIfSufficient(ctx context.Context, req models.DeductRequest, amount int64) (*models.DeductResponse, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Idempotency check: a retried billable click must not double-charge.
	if req.IdempotencyKey != "" {
		var prior models.CreditTransaction
		err = tx.QueryRow(ctx,
			`SELECT id, account_id, tx_type, operation, amount, balance_after,
			        COALESCE(model, ''), metadata, COALESCE(idempotency_key, ''), created_at
			 FROM credit_transactions WHERE idempotency_key = $1`,
			req.IdempotencyKey,
		).Scan(&prior.ID, &prior.AccountID, &prior.Type, &prior.Operation, &prior.Amount,
			&prior.BalanceAfter, &prior.Model, &prior.Metadata, &prior.IdempotencyKey, &prior.CreatedAt)
		if err == nil {
			if prior.AccountID != req.AccountID || prior.Amount != -amount {
				return nil, ErrIdempotencyMismatch
			}
			var balance int64
			if err := tx.QueryRow(ctx,
				"SELECT balance FROM accounts WHERE id = $1", req.AccountID).Scan(&balance); err != nil {
				return nil, fmt.Errorf("balance query failed: %w", err)
			}
			return &models.DeductResponse{Transaction: prior, Balance: balance}, nil
		}
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("idempotency query failed: %w", err)
		}
	}

	// 2. Lock the account row and check funds.
	var balance int64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", req.AccountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	if balance < amount {
		return nil, &credits.InsufficientBalanceError{Required: amount, Available: balance}
	}

	// 3. Record the movement and update the balance.
	record := models.CreditTransaction{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		Type:           models.TxDeduction,
		Operation:      req.Operation,
		Amount:         -amount,
		BalanceAfter:   balance - amount,
		Model:          req.Model,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO credit_transactions
		   (id, account_id, tx_type, operation, amount, balance_after, model, metadata, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''))
		 RETURNING created_at`,
		record.ID, record.AccountID, record.Type, record.Operation, record.Amount,
		record.BalanceAfter, record.Model, record.Metadata, record.IdempotencyKey,
	).Scan(&record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = balance - $1 WHERE id = $2", amount, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	return &models.DeductResponse{Transaction: record, Balance: record.BalanceAfter}, nil
}

// Grant credits the account by amount. A non-nil refundOf ties the grant to
// the deduction it reverses and records it as a refund rather than a plain
// grant.
func (s *LedgerService) Grant(ctx context.Context, accountID uuid.UUID, amount int64, op models.OperationType, refundOf uuid.UUID) (*models.DeductResponse, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	txType := models.TxGrant
	var metadata []byte
	if refundOf != uuid.Nil {
		txType = models.TxRefund
		metadata = fmt.Appendf(nil, `{"refund_of":%q}`, refundOf)
	}

	record := models.CreditTransaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		Type:         txType,
		Operation:    op,
		Amount:       amount,
		BalanceAfter: balance + amount,
		Metadata:     metadata,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO credit_transactions (id, account_id, tx_type, operation, amount, balance_after, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		record.ID, record.AccountID, record.Type, record.Operation,
		record.Amount, record.BalanceAfter, record.Metadata,
	).Scan(&record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = balance + $1 WHERE id = $2", amount, accountID)
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	return &models.DeductResponse{Transaction: record, Balance: record.BalanceAfter}, nil
}

// RefundTransaction looks up a prior deduction and grants its exact amount
// back. Used by the standalone refund endpoint; the meter's bound refund
// calls Grant directly.
func (s *LedgerService) RefundTransaction(ctx context.Context, accountID, transactionID uuid.UUID) (*models.DeductResponse, error) {
	var op models.OperationType
	var amount int64
	err := s.db.QueryRow(ctx,
		`SELECT operation, amount FROM credit_transactions
		 WHERE id = $1 AND account_id = $2 AND tx_type = $3`,
		transactionID, accountID, models.TxDeduction,
	).Scan(&op, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	return s.Grant(ctx, accountID, -amount, op, transactionID)
}
