package service

import (
	"context"
	"time"

	"chitfund/events"
	"chitfund/models"

	"github.com/stretchr/testify/mock"
)

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedgerRepository) CreateAccount(ctx context.Context, username string) (*models.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedgerRepository) Credit(ctx context.Context, username string, amount int64) (int64, error) {
	args := m.Called(ctx, username, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) RecordTransfer(ctx context.Context, transfer *models.Transfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetTransfersByAccount(ctx context.Context, username string) ([]*models.Transfer, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transfer), args.Error(1)
}

// MockBidRepository is a mock implementation of BidRepository
type MockBidRepository struct {
	mock.Mock
}

func (m *MockBidRepository) Create(ctx context.Context, bid *models.Bid) error {
	args := m.Called(ctx, bid)
	return args.Error(0)
}

func (m *MockBidRepository) GetByGroupMonth(ctx context.Context, groupID string, month int) ([]*models.Bid, error) {
	args := m.Called(ctx, groupID, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bid), args.Error(1)
}

func (m *MockBidRepository) GetLowestForMonth(ctx context.Context, groupID string, month int) (*models.Bid, error) {
	args := m.Called(ctx, groupID, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bid), args.Error(1)
}

func (m *MockBidRepository) GetWinningBid(ctx context.Context, groupID string, month int) (*models.Bid, error) {
	args := m.Called(ctx, groupID, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bid), args.Error(1)
}

func (m *MockBidRepository) GetWinningBids(ctx context.Context, groupID string) ([]*models.Bid, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bid), args.Error(1)
}

func (m *MockBidRepository) GetLiveBids(ctx context.Context, groupID string, poolAmount int64) ([]*models.Bid, error) {
	args := m.Called(ctx, groupID, poolAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bid), args.Error(1)
}

func (m *MockBidRepository) HasWinningBid(ctx context.Context, groupID string, username string) (bool, error) {
	args := m.Called(ctx, groupID, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockBidRepository) MarkWinner(ctx context.Context, bidID int64, groupID string, month int) (bool, error) {
	args := m.Called(ctx, bidID, groupID, month)
	return args.Bool(0), args.Error(1)
}

func (m *MockBidRepository) InsertWinner(ctx context.Context, bid *models.Bid) (bool, error) {
	args := m.Called(ctx, bid)
	return args.Bool(0), args.Error(1)
}

// MockGroupStore is a mock implementation of GroupStore
type MockGroupStore struct {
	mock.Mock
}

func (m *MockGroupStore) Create(ctx context.Context, group *models.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockGroupStore) GetByID(ctx context.Context, groupID string) (*models.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockGroupStore) Start(ctx context.Context, groupID string, deadline time.Time) (bool, error) {
	args := m.Called(ctx, groupID, deadline)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupStore) AdvanceMonth(ctx context.Context, groupID string, settledMonth int, nextDeadline time.Time) error {
	args := m.Called(ctx, groupID, settledMonth, nextDeadline)
	return args.Error(0)
}

func (m *MockGroupStore) Complete(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockGroupStore) ListDue(ctx context.Context, now time.Time) ([]*models.Group, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Group), args.Error(1)
}

// MockParticipantGraph is a mock implementation of ParticipantGraph
type MockParticipantGraph struct {
	mock.Mock
}

func (m *MockParticipantGraph) CreateUser(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockParticipantGraph) CreateGroup(ctx context.Context, groupID, name, owner string) error {
	args := m.Called(ctx, groupID, name, owner)
	return args.Error(0)
}

func (m *MockParticipantGraph) IsParticipant(ctx context.Context, groupID, username string) (bool, error) {
	args := m.Called(ctx, groupID, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockParticipantGraph) IsOwner(ctx context.Context, groupID, username string) (bool, error) {
	args := m.Called(ctx, groupID, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockParticipantGraph) Invite(ctx context.Context, groupID, invitedBy, username string) error {
	args := m.Called(ctx, groupID, invitedBy, username)
	return args.Error(0)
}

func (m *MockParticipantGraph) HasPendingInvite(ctx context.Context, groupID, username string) (bool, error) {
	args := m.Called(ctx, groupID, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockParticipantGraph) PendingInvites(ctx context.Context, username string) ([]*models.GroupInvite, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GroupInvite), args.Error(1)
}

func (m *MockParticipantGraph) AcceptInvite(ctx context.Context, groupID, username string) (bool, error) {
	args := m.Called(ctx, groupID, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockParticipantGraph) RejectInvite(ctx context.Context, groupID, username string) error {
	args := m.Called(ctx, groupID, username)
	return args.Error(0)
}

func (m *MockParticipantGraph) RemoveParticipant(ctx context.Context, groupID, username string) error {
	args := m.Called(ctx, groupID, username)
	return args.Error(0)
}

func (m *MockParticipantGraph) Participants(ctx context.Context, groupID string) ([]*models.Participant, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Participant), args.Error(1)
}

func (m *MockParticipantGraph) NeverWon(ctx context.Context, groupID string) ([]string, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockParticipantGraph) RecordWin(ctx context.Context, groupID, username string, month int, amount int64, wonAt time.Time) error {
	args := m.Called(ctx, groupID, username, month, amount, wonAt)
	return args.Error(0)
}

func (m *MockParticipantGraph) Winners(ctx context.Context, groupID string) ([]*models.GroupWinner, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GroupWinner), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// recordingPublisher collects published events for assertion without
// per-event expectations
type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) {
	p.published = append(p.published, event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever was wired via SetRepositories rather than going through
// expectations.
type MockUnitOfWork struct {
	mock.Mock
	ledgerRepo LedgerRepository
	bidRepo    BidRepository
	eventBus   EventPublisher
}

// SetRepositories wires the repositories and event bus returned by the getters.
// A nil bus falls back to a recording publisher.
func (m *MockUnitOfWork) SetRepositories(ledger LedgerRepository, bids BidRepository, bus EventPublisher) {
	if bus == nil {
		bus = &recordingPublisher{}
	}
	m.ledgerRepo = ledger
	m.bidRepo = bids
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) LedgerRepository() LedgerRepository {
	return m.ledgerRepo
}

func (m *MockUnitOfWork) BidRepository() BidRepository {
	return m.bidRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// fixedRand returns a predetermined sequence of values, cycling when exhausted
type fixedRand struct {
	values []int
	next   int
}

func (r *fixedRand) Intn(n int) int {
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[r.next%len(r.values)] % n
	r.next++
	return v
}
