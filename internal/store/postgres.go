package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sceneforge/sceneledger/internal/models"
)

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// GetAccount retrieves a single account by ID.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.Db.QueryRow(ctx,
		"SELECT id, display_name, balance, metered, created_at FROM accounts WHERE id = $1",
		id).Scan(&account.ID, &account.DisplayName, &account.Balance, &account.Metered, &account.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount creates a new account with the given starting balance.
func (s *Store) CreateAccount(ctx context.Context, displayName string, metered bool, balance int64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.Db.Exec(ctx,
		"INSERT INTO accounts (id, display_name, balance, metered) VALUES ($1, $2, $3, $4)",
		id, displayName, balance, metered)
	return id, err
}

// GetTransactions retrieves the credit history for an account, newest first.
func (s *Store) GetTransactions(ctx context.Context, accountID uuid.UUID) ([]models.CreditTransaction, error) {
	var exists bool
	err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("account not found")
	}

	rows, err := s.Db.Query(ctx,
		`SELECT id, account_id, tx_type, operation, amount, balance_after,
		        COALESCE(model, ''), metadata, COALESCE(idempotency_key, ''), created_at
		 FROM credit_transactions WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.CreditTransaction
	for rows.Next() {
		var tx models.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.Operation, &tx.Amount,
			&tx.BalanceAfter, &tx.Model, &tx.Metadata, &tx.IdempotencyKey, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
