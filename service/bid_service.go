package service

import (
	"context"

	"chitfund/events"
	"chitfund/models"
)

type bidService struct {
	uowFactory UnitOfWorkFactory
	groups     GroupStore
	graph      ParticipantGraph
}

// NewBidService creates a new bid intake service
func NewBidService(uowFactory UnitOfWorkFactory, groups GroupStore, graph ParticipantGraph) BidService {
	return &bidService{
		uowFactory: uowFactory,
		groups:     groups,
		graph:      graph,
	}
}

// PlaceBid validates and records a bid against the group's active month.
// Precondition checks run in a fixed order, each with its own error kind,
// before any mutation.
func (s *bidService) PlaceBid(ctx context.Context, groupID, username string, amount int64) (*models.Bid, error) {
	isParticipant, err := s.graph.IsParticipant(ctx, groupID, username)
	if err != nil {
		return nil, WrapStoreError(err, "failed to check group membership")
	}
	if !isParticipant {
		return nil, NewError(KindUnauthorized, "user %q is not a participant of group %s", username, groupID)
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return nil, NewError(KindNotFound, "group %s not found", groupID)
	}
	if !group.IsStarted() {
		return nil, NewError(KindInvalidState, "group %s is not accepting bids (status: %s)", groupID, group.Status)
	}

	// Remaining checks read auction state, so they run inside the same
	// transaction that records the bid
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback() // No-op if already committed

	alreadyWon, err := uow.BidRepository().HasWinningBid(ctx, groupID, username)
	if err != nil {
		return nil, WrapStoreError(err, "failed to check win history")
	}
	if alreadyWon {
		return nil, NewError(KindAlreadyWon, "user %q has already won in group %s", username, groupID)
	}

	if amount <= 0 {
		return nil, NewError(KindInvalidAmount, "bid amount must be positive, got %d", amount)
	}

	lowest, err := uow.BidRepository().GetLowestForMonth(ctx, groupID, group.CurrentMonth)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get current lowest bid")
	}
	if lowest != nil && amount >= lowest.Amount {
		return nil, NewError(KindBidTooHigh, "bid of %d must undercut the current lowest bid of %d", amount, lowest.Amount)
	}

	// Holds trivially when a prior bid exists, but guards the first bid of
	// the month and any drift in the checks above
	if amount >= group.PoolAmount {
		return nil, NewError(KindBidTooHigh, "bid of %d must be below the pool amount of %d", amount, group.PoolAmount)
	}

	bid := &models.Bid{
		GroupID:  groupID,
		Username: username,
		Amount:   amount,
		Month:    group.CurrentMonth,
	}

	if err := uow.BidRepository().Create(ctx, bid); err != nil {
		return nil, WrapStoreError(err, "failed to record bid")
	}

	uow.EventBus().Publish(events.BidPlacedEvent{
		GroupID:  groupID,
		Username: username,
		Amount:   amount,
		Month:    bid.Month,
	})

	if err := uow.Commit(); err != nil {
		return nil, WrapStoreError(err, "failed to commit transaction")
	}

	return bid, nil
}

// GetCurrentBid returns the lowest live bid for the active month, nil when none
func (s *bidService) GetCurrentBid(ctx context.Context, groupID string) (*models.Bid, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return nil, NewError(KindNotFound, "group %s not found", groupID)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	bid, err := uow.BidRepository().GetLowestForMonth(ctx, groupID, group.CurrentMonth)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get current bid")
	}

	return bid, nil
}

// GetBidHistory returns the group's live bids below the pool, amount ascending
func (s *bidService) GetBidHistory(ctx context.Context, groupID string) ([]*models.Bid, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return nil, NewError(KindNotFound, "group %s not found", groupID)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	bids, err := uow.BidRepository().GetLiveBids(ctx, groupID, group.PoolAmount)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get bid history")
	}

	return bids, nil
}

// GetWinningBids returns winner-flagged bids ordered by month
func (s *bidService) GetWinningBids(ctx context.Context, groupID string) ([]*models.Bid, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	bids, err := uow.BidRepository().GetWinningBids(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get winning bids")
	}

	return bids, nil
}
