package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"chitfund/events"
	"chitfund/models"
)

type settlementService struct {
	uowFactory      UnitOfWorkFactory
	groups          GroupStore
	graph           ParticipantGraph
	rng             Rand
	auctionInterval time.Duration
}

// NewSettlementService creates the month-close orchestrator. The random source
// is injected so fallback selection is testable.
func NewSettlementService(
	uowFactory UnitOfWorkFactory,
	groups GroupStore,
	graph ParticipantGraph,
	rng Rand,
	auctionInterval time.Duration,
) SettlementService {
	return &settlementService{
		uowFactory:      uowFactory,
		groups:          groups,
		graph:           graph,
		rng:             rng,
		auctionInterval: auctionInterval,
	}
}

// CloseMonth settles the group's current month. The winner flag in the ledger
// store is the settlement's commit point: flag and payout land in one
// transaction, and every later call that finds the flag set only replays the
// cheap idempotent updates on the other stores. Money is paid at most once.
func (s *settlementService) CloseMonth(ctx context.Context, groupID, username string) (bool, error) {
	isParticipant, err := s.graph.IsParticipant(ctx, groupID, username)
	if err != nil {
		return false, WrapStoreError(err, "failed to check group membership")
	}
	if !isParticipant {
		return false, NewError(KindUnauthorized, "user %q is not a participant of group %s", username, groupID)
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return false, NewError(KindNotFound, "group %s not found", groupID)
	}
	if !group.IsStarted() {
		return false, NewError(KindInvalidState, "group %s is not running (status: %s)", groupID, group.Status)
	}

	// A crash between paying the final month and completing the group leaves
	// the counter past the end. Finish the completion and stop.
	if group.CurrentMonth > group.TotalMonths {
		if err := s.groups.Complete(ctx, groupID); err != nil {
			return false, WrapStoreError(err, "failed to complete group %s", groupID)
		}
		return true, nil
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback() // No-op if already committed

	// Resume path: a winner flag for this month means a prior call already
	// executed the payout and died before updating the other stores
	settled, err := uow.BidRepository().GetWinningBid(ctx, groupID, group.CurrentMonth)
	if err != nil {
		return false, WrapStoreError(err, "failed to check for settled month")
	}
	if settled != nil {
		_ = uow.Rollback()
		if err := s.finishSettlement(ctx, group, settled); err != nil {
			return true, err
		}
		log.WithFields(log.Fields{
			"groupID": groupID,
			"month":   settled.Month,
			"winner":  settled.Username,
		}).Info("Resumed partial settlement")
		return true, nil
	}

	// Nothing settled yet: only the deadline can trigger a fresh settlement
	if !group.IsAuctionDue(time.Now().UTC()) {
		return false, nil
	}

	winning, err := s.pickWinner(ctx, uow, group)
	if err != nil {
		return false, err
	}
	if winning == nil {
		// Lost a race with a concurrent settlement of the same month. The
		// winner is durable once our conditional write observes it, so roll
		// back and finish from the committed state.
		_ = uow.Rollback()
		return s.resumeAfterRace(ctx, group)
	}

	// Pool payout rides in the same transaction as the winner flag
	if _, err := uow.LedgerRepository().Credit(ctx, winning.Username, winning.Amount); err != nil {
		return false, WrapStoreError(err, "failed to credit winner %q", winning.Username)
	}

	transfer := &models.Transfer{
		FromAccount: models.SystemAccount,
		ToAccount:   winning.Username,
		Amount:      winning.Amount,
		Description: fmt.Sprintf("chit payout: group %s month %d", groupID, winning.Month),
	}
	if err := uow.LedgerRepository().RecordTransfer(ctx, transfer); err != nil {
		return false, WrapStoreError(err, "failed to record payout transfer")
	}

	uow.EventBus().Publish(events.MonthSettledEvent{
		GroupID:       groupID,
		Winner:        winning.Username,
		Month:         winning.Month,
		WinningAmount: winning.Amount,
		Completed:     winning.Month == group.TotalMonths,
	})

	if err := uow.Commit(); err != nil {
		return false, WrapStoreError(err, "failed to commit settlement")
	}

	log.WithFields(log.Fields{
		"groupID": groupID,
		"month":   winning.Month,
		"winner":  winning.Username,
		"amount":  winning.Amount,
	}).Info("Month settled")

	// Winner is paid; the remaining store updates are recovered by any later
	// call if they fail here
	if err := s.finishSettlement(ctx, group, winning); err != nil {
		log.WithError(err).WithField("groupID", groupID).
			Warn("Settlement committed but follow-up store updates failed, will resume on retry")
		return true, err
	}

	return true, nil
}

// pickWinner selects the month's winner inside the settlement transaction:
// the lowest live bid when one exists, otherwise a uniform random pick among
// participants who have never won, paid the full pool. Returns nil (no error)
// when a concurrent settlement flagged a winner first.
func (s *settlementService) pickWinner(ctx context.Context, uow UnitOfWork, group *models.Group) (*models.Bid, error) {
	bids, err := uow.BidRepository().GetByGroupMonth(ctx, group.ID, group.CurrentMonth)
	if err != nil {
		return nil, WrapStoreError(err, "failed to load bids for group %s month %d", group.ID, group.CurrentMonth)
	}

	if len(bids) > 0 && bids[0].Amount < group.PoolAmount {
		lowest := bids[0]
		flipped, err := uow.BidRepository().MarkWinner(ctx, lowest.ID, group.ID, group.CurrentMonth)
		if err != nil {
			return nil, WrapStoreError(err, "failed to mark winning bid %d", lowest.ID)
		}
		if !flipped {
			return nil, nil
		}
		lowest.IsWinner = true
		return lowest, nil
	}

	eligible, err := s.graph.NeverWon(ctx, group.ID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to load eligible participants for group %s", group.ID)
	}
	if len(eligible) == 0 {
		return nil, NewError(KindNoEligibleParticipant, "no bids and no never-won participants in group %s month %d", group.ID, group.CurrentMonth)
	}

	winning := &models.Bid{
		GroupID:  group.ID,
		Username: eligible[s.rng.Intn(len(eligible))],
		Amount:   group.PoolAmount,
		Month:    group.CurrentMonth,
	}
	inserted, err := uow.BidRepository().InsertWinner(ctx, winning)
	if err != nil {
		return nil, WrapStoreError(err, "failed to insert fallback winner for group %s", group.ID)
	}
	if !inserted {
		return nil, nil
	}
	return winning, nil
}

// resumeAfterRace re-reads the winner the concurrent settlement committed and
// replays the follow-up store updates
func (s *settlementService) resumeAfterRace(ctx context.Context, group *models.Group) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	settled, err := uow.BidRepository().GetWinningBid(ctx, group.ID, group.CurrentMonth)
	if err != nil {
		return false, WrapStoreError(err, "failed to re-read settled month")
	}
	if settled == nil {
		return false, nil
	}

	if err := s.finishSettlement(ctx, group, settled); err != nil {
		return true, err
	}
	return true, nil
}

// finishSettlement applies the post-payout updates: advance the group month
// (or complete the group) and record the win on the participant edge. Both
// writes are idempotent, so replays after partial failures are safe.
func (s *settlementService) finishSettlement(ctx context.Context, group *models.Group, winner *models.Bid) error {
	nextDeadline := time.Now().UTC().Add(s.auctionInterval)
	if err := s.groups.AdvanceMonth(ctx, group.ID, winner.Month, nextDeadline); err != nil {
		return WrapStoreError(err, "failed to advance group %s past month %d", group.ID, winner.Month)
	}

	if err := s.graph.RecordWin(ctx, group.ID, winner.Username, winner.Month, winner.Amount, time.Now().UTC()); err != nil {
		return WrapStoreError(err, "failed to record win for %q in group %s", winner.Username, group.ID)
	}

	return nil
}

// ShouldCloseMonth reports whether the group's auction deadline has passed
func (s *settlementService) ShouldCloseMonth(ctx context.Context, groupID string) (bool, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return false, NewError(KindNotFound, "group %s not found", groupID)
	}

	return group.IsAuctionDue(time.Now().UTC()), nil
}
