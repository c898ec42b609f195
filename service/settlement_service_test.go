package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"chitfund/events"
	"chitfund/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testAuctionInterval = 30 * 24 * time.Hour

func startedGroup(currentMonth, totalMonths int, deadline time.Time) *models.Group {
	return &models.Group{
		ID:              "group1",
		Name:            "test group",
		Owner:           "owner",
		PoolAmount:      12000,
		TotalMonths:     totalMonths,
		Status:          models.GroupStatusStarted,
		CurrentMonth:    currentMonth,
		ShuffleDeadline: &deadline,
	}
}

func TestSettlementService_CloseMonth_LowestBidWins(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)
	bus := &recordingPublisher{}

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, bus)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := startedGroup(2, 3, time.Now().UTC().Add(-time.Hour))

	mockGraph.On("IsParticipant", ctx, "group1", "alice").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 2).Return(nil, nil)
	mockBidRepo.On("GetByGroupMonth", ctx, "group1", 2).Return([]*models.Bid{
		{ID: 7, GroupID: "group1", Username: "alice", Amount: 9000, Month: 2},
		{ID: 8, GroupID: "group1", Username: "bob", Amount: 9500, Month: 2},
	}, nil)
	mockBidRepo.On("MarkWinner", ctx, int64(7), "group1", 2).Return(true, nil)

	mockLedgerRepo.On("Credit", ctx, "alice", int64(9000)).Return(int64(9000), nil)
	mockLedgerRepo.On("RecordTransfer", ctx, mock.MatchedBy(func(tr *models.Transfer) bool {
		return tr.FromAccount == models.SystemAccount &&
			tr.ToAccount == "alice" &&
			tr.Amount == 9000
	})).Return(nil)

	mockGroups.On("AdvanceMonth", ctx, "group1", 2, mock.AnythingOfType("time.Time")).Return(nil)
	mockGraph.On("RecordWin", ctx, "group1", "alice", 2, int64(9000), mock.AnythingOfType("time.Time")).Return(nil)

	executed, err := service.CloseMonth(ctx, "group1", "alice")

	assert.NoError(t, err)
	assert.True(t, executed)

	if assert.Len(t, bus.published, 1) {
		settled := bus.published[0].(events.MonthSettledEvent)
		assert.Equal(t, "alice", settled.Winner)
		assert.Equal(t, 2, settled.Month)
		assert.Equal(t, int64(9000), settled.WinningAmount)
		assert.False(t, settled.Completed)
	}

	mockFactory.AssertExpectations(t)
	mockUoW.AssertExpectations(t)
	mockLedgerRepo.AssertExpectations(t)
	mockBidRepo.AssertExpectations(t)
	mockGroups.AssertExpectations(t)
	mockGraph.AssertExpectations(t)
}

func TestSettlementService_CloseMonth_FallbackRandomPick(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)
	bus := &recordingPublisher{}

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, bus)

	// Deterministic pick: index 1 of the eligible list
	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{values: []int{1}}, testAuctionInterval)

	group := startedGroup(3, 3, time.Now().UTC().Add(-time.Hour))

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 3).Return(nil, nil)
	mockBidRepo.On("GetByGroupMonth", ctx, "group1", 3).Return([]*models.Bid{}, nil)

	mockGraph.On("NeverWon", ctx, "group1").Return([]string{"alice", "carol"}, nil)

	mockBidRepo.On("InsertWinner", ctx, mock.MatchedBy(func(b *models.Bid) bool {
		return b.Username == "carol" && b.Amount == 12000 && b.Month == 3
	})).Return(true, nil)

	// Random winner receives the full pool
	mockLedgerRepo.On("Credit", ctx, "carol", int64(12000)).Return(int64(12000), nil)
	mockLedgerRepo.On("RecordTransfer", ctx, mock.MatchedBy(func(tr *models.Transfer) bool {
		return tr.ToAccount == "carol" && tr.Amount == 12000
	})).Return(nil)

	mockGroups.On("AdvanceMonth", ctx, "group1", 3, mock.AnythingOfType("time.Time")).Return(nil)
	mockGraph.On("RecordWin", ctx, "group1", "carol", 3, int64(12000), mock.AnythingOfType("time.Time")).Return(nil)

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	assert.NoError(t, err)
	assert.True(t, executed)

	if assert.Len(t, bus.published, 1) {
		settled := bus.published[0].(events.MonthSettledEvent)
		assert.Equal(t, "carol", settled.Winner)
		assert.True(t, settled.Completed)
	}

	mockBidRepo.AssertExpectations(t)
	mockGraph.AssertExpectations(t)
}

func TestSettlementService_CloseMonth_BidsAtPoolIgnored(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, nil)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := startedGroup(1, 3, time.Now().UTC().Add(-time.Hour))

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 1).Return(nil, nil)
	// A bid at or above the pool does not qualify, so selection falls back
	mockBidRepo.On("GetByGroupMonth", ctx, "group1", 1).Return([]*models.Bid{
		{ID: 9, GroupID: "group1", Username: "bob", Amount: 12000, Month: 1},
	}, nil)

	mockGraph.On("NeverWon", ctx, "group1").Return([]string{"alice"}, nil)
	mockBidRepo.On("InsertWinner", ctx, mock.MatchedBy(func(b *models.Bid) bool {
		return b.Username == "alice" && b.Amount == 12000
	})).Return(true, nil)

	mockLedgerRepo.On("Credit", ctx, "alice", int64(12000)).Return(int64(12000), nil)
	mockLedgerRepo.On("RecordTransfer", ctx, mock.Anything).Return(nil)
	mockGroups.On("AdvanceMonth", ctx, "group1", 1, mock.AnythingOfType("time.Time")).Return(nil)
	mockGraph.On("RecordWin", ctx, "group1", "alice", 1, int64(12000), mock.AnythingOfType("time.Time")).Return(nil)

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	assert.NoError(t, err)
	assert.True(t, executed)
	mockBidRepo.AssertExpectations(t)
}

func TestSettlementService_CloseMonth_NoEligibleParticipant(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, nil)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := startedGroup(2, 3, time.Now().UTC().Add(-time.Hour))

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 2).Return(nil, nil)
	mockBidRepo.On("GetByGroupMonth", ctx, "group1", 2).Return([]*models.Bid{}, nil)
	mockGraph.On("NeverWon", ctx, "group1").Return([]string{}, nil)

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	assert.Error(t, err)
	assert.False(t, executed)
	assert.Equal(t, KindNoEligibleParticipant, KindOf(err))

	// Fail closed: no money moved
	mockLedgerRepo.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestSettlementService_CloseMonth_ResumesPartialSettlement(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, nil)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	// Deadline still in the future: a durable winner flag alone triggers resume
	group := startedGroup(2, 3, time.Now().UTC().Add(time.Hour))

	alreadySettled := &models.Bid{
		ID: 7, GroupID: "group1", Username: "alice", Amount: 9000, Month: 2, IsWinner: true,
	}

	mockGraph.On("IsParticipant", ctx, "group1", "bob").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 2).Return(alreadySettled, nil)

	mockGroups.On("AdvanceMonth", ctx, "group1", 2, mock.AnythingOfType("time.Time")).Return(nil)
	mockGraph.On("RecordWin", ctx, "group1", "alice", 2, int64(9000), mock.AnythingOfType("time.Time")).Return(nil)

	executed, err := service.CloseMonth(ctx, "group1", "bob")

	assert.NoError(t, err)
	assert.True(t, executed)

	// Never re-pays
	mockLedgerRepo.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
	mockGroups.AssertExpectations(t)
	mockGraph.AssertExpectations(t)
}

func TestSettlementService_CloseMonth_LostRaceResumesFromCommittedWinner(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, nil)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := startedGroup(2, 3, time.Now().UTC().Add(-time.Hour))

	committedWinner := &models.Bid{
		ID: 7, GroupID: "group1", Username: "alice", Amount: 9000, Month: 2, IsWinner: true,
	}

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	// First read sees no winner, conditional write loses, re-read sees the
	// concurrent caller's committed winner
	mockBidRepo.On("GetWinningBid", ctx, "group1", 2).Return(nil, nil).Once()
	mockBidRepo.On("GetByGroupMonth", ctx, "group1", 2).Return([]*models.Bid{
		{ID: 7, GroupID: "group1", Username: "alice", Amount: 9000, Month: 2},
	}, nil)
	mockBidRepo.On("MarkWinner", ctx, int64(7), "group1", 2).Return(false, nil)
	mockBidRepo.On("GetWinningBid", ctx, "group1", 2).Return(committedWinner, nil).Once()

	mockGroups.On("AdvanceMonth", ctx, "group1", 2, mock.AnythingOfType("time.Time")).Return(nil)
	mockGraph.On("RecordWin", ctx, "group1", "alice", 2, int64(9000), mock.AnythingOfType("time.Time")).Return(nil)

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	assert.NoError(t, err)
	assert.True(t, executed)
	mockLedgerRepo.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
	mockBidRepo.AssertExpectations(t)
}

func TestSettlementService_CloseMonth_NotDueIsNoop(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, nil)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := startedGroup(1, 3, time.Now().UTC().Add(time.Hour))

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 1).Return(nil, nil)

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	assert.NoError(t, err)
	assert.False(t, executed)
	mockBidRepo.AssertNotCalled(t, "GetByGroupMonth", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlementService_CloseMonth_CompletedGroupRejected(t *testing.T) {
	ctx := context.Background()

	mockFactory := new(MockUnitOfWorkFactory)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := &models.Group{
		ID:           "group1",
		Status:       models.GroupStatusCompleted,
		TotalMonths:  3,
		CurrentMonth: 3,
		PoolAmount:   12000,
	}

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	assert.Error(t, err)
	assert.False(t, executed)
	assert.Equal(t, KindInvalidState, KindOf(err))
	mockFactory.AssertNotCalled(t, "Create")
}

func TestSettlementService_CloseMonth_NotParticipant(t *testing.T) {
	ctx := context.Background()

	mockFactory := new(MockUnitOfWorkFactory)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	mockGraph.On("IsParticipant", ctx, "group1", "mallory").Return(false, nil)

	executed, err := service.CloseMonth(ctx, "group1", "mallory")

	assert.Error(t, err)
	assert.False(t, executed)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	mockGroups.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestSettlementService_CloseMonth_FinishFailureSurfacesAfterPayout(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLedgerRepo := new(MockLedgerRepository)
	mockBidRepo := new(MockBidRepository)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	mockUoW.SetRepositories(mockLedgerRepo, mockBidRepo, nil)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	group := startedGroup(2, 3, time.Now().UTC().Add(-time.Hour))

	mockGraph.On("IsParticipant", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(group, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockBidRepo.On("GetWinningBid", ctx, "group1", 2).Return(nil, nil)
	mockBidRepo.On("GetByGroupMonth", ctx, "group1", 2).Return([]*models.Bid{
		{ID: 7, GroupID: "group1", Username: "alice", Amount: 9000, Month: 2},
	}, nil)
	mockBidRepo.On("MarkWinner", ctx, int64(7), "group1", 2).Return(true, nil)

	mockLedgerRepo.On("Credit", ctx, "alice", int64(9000)).Return(int64(9000), nil)
	mockLedgerRepo.On("RecordTransfer", ctx, mock.Anything).Return(nil)

	mockGroups.On("AdvanceMonth", ctx, "group1", 2, mock.AnythingOfType("time.Time")).
		Return(errors.New("document store unavailable"))

	executed, err := service.CloseMonth(ctx, "group1", "owner")

	// Payout committed, so the call reports execution along with the
	// retryable failure
	assert.True(t, executed)
	assert.Error(t, err)
	assert.Equal(t, KindStoreUnavailable, KindOf(err))
}

func TestSettlementService_ShouldCloseMonth(t *testing.T) {
	ctx := context.Background()

	mockFactory := new(MockUnitOfWorkFactory)
	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := NewSettlementService(mockFactory, mockGroups, mockGraph, &fixedRand{}, testAuctionInterval)

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	mockGroups.On("GetByID", ctx, "due").Return(startedGroup(1, 3, past), nil)
	mockGroups.On("GetByID", ctx, "notdue").Return(startedGroup(1, 3, future), nil)
	mockGroups.On("GetByID", ctx, "missing").Return(nil, nil)

	due, err := service.ShouldCloseMonth(ctx, "due")
	assert.NoError(t, err)
	assert.True(t, due)

	due, err = service.ShouldCloseMonth(ctx, "notdue")
	assert.NoError(t, err)
	assert.False(t, due)

	_, err = service.ShouldCloseMonth(ctx, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}
