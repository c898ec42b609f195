package models

import "time"

// Participant represents a membership edge between a user and a group,
// including the user's win history within that group
type Participant struct {
	GroupID   string
	Username  string
	JoinedAt  time.Time
	WonMonth  *int
	WonAmount *int64
	WonAt     *time.Time
}

// HasWon reports whether this participant already received a payout in the group
func (p *Participant) HasWon() bool {
	return p.WonMonth != nil
}

// GroupInvite represents a pending invitation to join a group
type GroupInvite struct {
	GroupID   string
	Username  string
	InvitedBy string
	InvitedAt time.Time
}

// GroupWinner summarizes a settled month for group history views
type GroupWinner struct {
	Username string
	Month    int
	Amount   int64
	WonAt    time.Time
}
