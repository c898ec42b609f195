package service

import (
	"context"
	"time"

	"chitfund/events"
	"chitfund/models"
)

// LedgerRepository defines data access for accounts and the transfer log.
// Balance changes and transfer rows are always written inside one unit of work.
type LedgerRepository interface {
	// GetAccount retrieves an account by username, nil when not found
	GetAccount(ctx context.Context, username string) (*models.Account, error)

	// CreateAccount creates a zero-balance account
	CreateAccount(ctx context.Context, username string) (*models.Account, error)

	// Credit atomically adds to an account's balance and returns the new balance
	Credit(ctx context.Context, username string, amount int64) (int64, error)

	// RecordTransfer appends an immutable transfer row
	RecordTransfer(ctx context.Context, transfer *models.Transfer) error

	// GetTransfersByAccount returns transfers touching the account, newest first
	GetTransfersByAccount(ctx context.Context, username string) ([]*models.Transfer, error)
}

// BidRepository defines data access for auction bids
type BidRepository interface {
	// Create inserts a new bid
	Create(ctx context.Context, bid *models.Bid) error

	// GetByGroupMonth returns a month's bids ordered by amount, then creation time
	GetByGroupMonth(ctx context.Context, groupID string, month int) ([]*models.Bid, error)

	// GetLowestForMonth returns the month's lowest live bid, nil when none
	GetLowestForMonth(ctx context.Context, groupID string, month int) (*models.Bid, error)

	// GetWinningBid returns the month's winner-flagged bid, nil when not yet settled
	GetWinningBid(ctx context.Context, groupID string, month int) (*models.Bid, error)

	// GetWinningBids returns all winner-flagged bids for a group, month ascending
	GetWinningBids(ctx context.Context, groupID string) ([]*models.Bid, error)

	// GetLiveBids returns the group's non-winning bids below the pool amount,
	// ordered by amount ascending
	GetLiveBids(ctx context.Context, groupID string, poolAmount int64) ([]*models.Bid, error)

	// HasWinningBid reports whether the user already holds a win in the group
	HasWinningBid(ctx context.Context, groupID string, username string) (bool, error)

	// MarkWinner conditionally flips the winner flag on a bid. It returns false
	// when the flag was already set for this (group, month), meaning a concurrent
	// settlement won the race.
	MarkWinner(ctx context.Context, bidID int64, groupID string, month int) (bool, error)

	// InsertWinner conditionally inserts a synthetic winning bid for the fallback
	// random pick. It returns false when a winner already exists for the month.
	InsertWinner(ctx context.Context, bid *models.Bid) (bool, error)
}

// GroupStore defines access to the group state document store
type GroupStore interface {
	// Create inserts a new group document and fills in its generated ID
	Create(ctx context.Context, group *models.Group) error

	// GetByID retrieves a group, nil when not found
	GetByID(ctx context.Context, groupID string) (*models.Group, error)

	// Start transitions waiting -> started, setting the first month and deadline.
	// Returns false when the group was not in waiting state.
	Start(ctx context.Context, groupID string, deadline time.Time) (bool, error)

	// AdvanceMonth conditionally advances past the settled month: either
	// increments currentMonth and stores the next deadline, or, on the final
	// month, flips status to completed and clears the deadline. Keyed on the
	// settled month so retries are no-ops.
	AdvanceMonth(ctx context.Context, groupID string, settledMonth int, nextDeadline time.Time) error

	// Complete force-completes a group whose month counter ran past the end
	Complete(ctx context.Context, groupID string) error

	// ListDue returns started groups whose deadline is at or before now
	ListDue(ctx context.Context, now time.Time) ([]*models.Group, error)
}

// ParticipantGraph defines access to the membership/ownership graph store
type ParticipantGraph interface {
	// CreateUser ensures a user node exists
	CreateUser(ctx context.Context, username string) error

	// CreateGroup creates the group node with ownership and membership edges
	CreateGroup(ctx context.Context, groupID, name, owner string) error

	// IsParticipant reports whether the user holds a membership edge
	IsParticipant(ctx context.Context, groupID, username string) (bool, error)

	// IsOwner reports whether the user owns the group
	IsOwner(ctx context.Context, groupID, username string) (bool, error)

	// Invite records a pending invitation edge
	Invite(ctx context.Context, groupID, invitedBy, username string) error

	// HasPendingInvite reports whether the user has an open invitation
	HasPendingInvite(ctx context.Context, groupID, username string) (bool, error)

	// PendingInvites returns the user's open invitations
	PendingInvites(ctx context.Context, username string) ([]*models.GroupInvite, error)

	// AcceptInvite converts an invitation into membership. Returns false when
	// no invitation exists.
	AcceptInvite(ctx context.Context, groupID, username string) (bool, error)

	// RejectInvite removes a pending invitation
	RejectInvite(ctx context.Context, groupID, username string) error

	// RemoveParticipant deletes the membership edge
	RemoveParticipant(ctx context.Context, groupID, username string) error

	// Participants returns all membership edges with win annotations
	Participants(ctx context.Context, groupID string) ([]*models.Participant, error)

	// NeverWon returns usernames of participants without a recorded win
	NeverWon(ctx context.Context, groupID string) ([]string, error)

	// RecordWin sets the win annotations on the participant edge
	RecordWin(ctx context.Context, groupID, username string, month int, amount int64, wonAt time.Time) error

	// Winners returns the group's win history ordered by month
	Winners(ctx context.Context, groupID string) ([]*models.GroupWinner, error)
}

// BidService defines the bid intake operations
type BidService interface {
	// PlaceBid validates and records a bid against the group's active month
	PlaceBid(ctx context.Context, groupID, username string, amount int64) (*models.Bid, error)

	// GetCurrentBid returns the lowest live bid for the active month, nil when none
	GetCurrentBid(ctx context.Context, groupID string) (*models.Bid, error)

	// GetBidHistory returns the group's live bids below the pool, amount ascending
	GetBidHistory(ctx context.Context, groupID string) ([]*models.Bid, error)

	// GetWinningBids returns winner-flagged bids ordered by month
	GetWinningBids(ctx context.Context, groupID string) ([]*models.Bid, error)
}

// SettlementService defines month-close orchestration
type SettlementService interface {
	// CloseMonth settles the group's current month. It returns true when a
	// settlement (or a resumed partial settlement) was executed and false when
	// there was nothing to do. Safe to call concurrently and to retry.
	CloseMonth(ctx context.Context, groupID, username string) (bool, error)

	// ShouldCloseMonth reports whether the group's auction deadline has passed
	ShouldCloseMonth(ctx context.Context, groupID string) (bool, error)
}

// LedgerService defines ledger-only operations
type LedgerService interface {
	// AddFunds credits the user's account and returns the new balance
	AddFunds(ctx context.Context, username string, amount int64) (int64, error)

	// GetBalance returns the account balance
	GetBalance(ctx context.Context, username string) (int64, error)

	// GetTransferHistory returns transfers touching the account, newest first
	GetTransferHistory(ctx context.Context, username string) ([]*models.Transfer, error)

	// ProvisionAccount creates the ledger account and graph node for a new user.
	// Registration itself is owned elsewhere; this is the engine-side provisioning.
	ProvisionAccount(ctx context.Context, username string) error
}

// GroupService defines group lifecycle operations outside settlement
type GroupService interface {
	CreateGroup(ctx context.Context, owner, name string, poolAmount int64, totalMonths int) (*models.Group, error)
	InviteToGroup(ctx context.Context, groupID, inviter, username string) error
	AcceptInvite(ctx context.Context, groupID, username string) (bool, error)
	RejectInvite(ctx context.Context, groupID, username string) error
	LeaveGroup(ctx context.Context, groupID, username string) error
	StartGroup(ctx context.Context, groupID, owner string) error
	GetGroup(ctx context.Context, groupID, username string) (*models.Group, error)
	GetParticipants(ctx context.Context, groupID, username string) ([]*models.Participant, error)
	GetWinners(ctx context.Context, groupID, username string) ([]*models.GroupWinner, error)
	GetPendingInvites(ctx context.Context, username string) ([]*models.GroupInvite, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// Rand is the injectable random source used by fallback winner selection
type Rand interface {
	// Intn returns a uniform value in [0, n)
	Intn(n int) int
}

// UnitOfWork defines transactional access to the ledger/auction repositories
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	LedgerRepository() LedgerRepository
	BidRepository() BidRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
