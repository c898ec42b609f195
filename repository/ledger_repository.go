package repository

import (
	"context"
	"fmt"

	"chitfund/database"
	"chitfund/models"
	"github.com/jackc/pgx/v5"
)

// LedgerRepository implements the service.LedgerRepository interface
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// GetAccount retrieves an account by username
func (r *LedgerRepository) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	query := `
		SELECT username, balance, created_at, updated_at
		FROM accounts
		WHERE username = $1
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, username).Scan(
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %q: %w", username, err)
	}

	return &account, nil
}

// CreateAccount creates a zero-balance account
func (r *LedgerRepository) CreateAccount(ctx context.Context, username string) (*models.Account, error) {
	query := `
		INSERT INTO accounts (username, balance)
		VALUES ($1, 0)
		RETURNING username, balance, created_at, updated_at
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, username).Scan(
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create account %q: %w", username, err)
	}

	return &account, nil
}

// Credit atomically adds to an account's balance and returns the new balance
func (r *LedgerRepository) Credit(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE username = $2
		RETURNING balance
	`

	var newBalance int64
	err := r.q.QueryRow(ctx, query, amount, username).Scan(&newBalance)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("account %q not found", username)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit account %q: %w", username, err)
	}

	return newBalance, nil
}

// RecordTransfer appends an immutable transfer row
func (r *LedgerRepository) RecordTransfer(ctx context.Context, transfer *models.Transfer) error {
	query := `
		INSERT INTO transfers (from_account, to_account, amount, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		transfer.FromAccount,
		transfer.ToAccount,
		transfer.Amount,
		transfer.Description,
	).Scan(&transfer.ID, &transfer.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record transfer from %q to %q: %w", transfer.FromAccount, transfer.ToAccount, err)
	}

	return nil
}

// GetTransfersByAccount returns transfers touching the account, newest first
func (r *LedgerRepository) GetTransfersByAccount(ctx context.Context, username string) ([]*models.Transfer, error) {
	query := `
		SELECT id, from_account, to_account, amount, description, created_at
		FROM transfers
		WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.q.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers for %q: %w", username, err)
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		var transfer models.Transfer
		err := rows.Scan(
			&transfer.ID,
			&transfer.FromAccount,
			&transfer.ToAccount,
			&transfer.Amount,
			&transfer.Description,
			&transfer.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, &transfer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}

	return transfers, nil
}
