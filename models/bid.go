package models

import "time"

// Bid represents a reverse-auction bid for one (group, month) pair.
// At most one bid per (group, month) carries IsWinner = true.
type Bid struct {
	ID        int64     `db:"id"`
	GroupID   string    `db:"group_id"`
	Username  string    `db:"username"`
	Amount    int64     `db:"amount"`
	Month     int       `db:"month"`
	IsWinner  bool      `db:"is_winner"`
	CreatedAt time.Time `db:"created_at"`
}
