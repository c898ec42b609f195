package models

import "time"

// SystemAccount is the reserved counterparty for deposits and pool payouts
const SystemAccount = "system"

// Account represents a user's ledger account
type Account struct {
	Username  string    `db:"username"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Transfer is an immutable audit record. Every balance change is paired
// with exactly one transfer row in the same transaction.
type Transfer struct {
	ID          int64     `db:"id"`
	FromAccount string    `db:"from_account"`
	ToAccount   string    `db:"to_account"`
	Amount      int64     `db:"amount"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}
