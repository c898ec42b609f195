package service

import (
	"context"
	"testing"
	"time"

	"chitfund/events"
	"chitfund/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newGroupServiceForTest(groups *MockGroupStore, graph *MockParticipantGraph) GroupService {
	return NewGroupService(groups, graph, events.NewBus(), testAuctionInterval)
}

func TestGroupService_CreateGroup(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	mockGroups.On("Create", ctx, mock.MatchedBy(func(g *models.Group) bool {
		return g.Name == "family fund" &&
			g.Owner == "alice" &&
			g.PoolAmount == 12000 &&
			g.TotalMonths == 3 &&
			g.Status == models.GroupStatusWaiting &&
			g.CurrentMonth == 0
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Group).ID = "group1"
	}).Return(nil)

	mockGraph.On("CreateGroup", ctx, "group1", "family fund", "alice").Return(nil)

	group, err := service.CreateGroup(ctx, "alice", "family fund", 12000, 3)

	assert.NoError(t, err)
	assert.Equal(t, "group1", group.ID)
	mockGroups.AssertExpectations(t)
	mockGraph.AssertExpectations(t)
}

func TestGroupService_CreateGroup_Validation(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	_, err := service.CreateGroup(ctx, "alice", "g", 0, 3)
	assert.Equal(t, KindInvalidAmount, KindOf(err))

	_, err = service.CreateGroup(ctx, "alice", "g", 12000, 0)
	assert.Equal(t, KindInvalidAmount, KindOf(err))

	_, err = service.CreateGroup(ctx, "alice", "g", 12000, 13)
	assert.Equal(t, KindInvalidAmount, KindOf(err))

	mockGroups.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupService_InviteToGroup(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{ID: "group1", Owner: "alice", Status: models.GroupStatusWaiting, PoolAmount: 12000, TotalMonths: 3}

	mockGraph.On("IsOwner", ctx, "group1", "alice").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)
	mockGraph.On("IsParticipant", ctx, "group1", "bob").Return(false, nil)
	mockGraph.On("HasPendingInvite", ctx, "group1", "bob").Return(false, nil)
	mockGraph.On("Invite", ctx, "group1", "alice", "bob").Return(nil)

	err := service.InviteToGroup(ctx, "group1", "alice", "bob")

	assert.NoError(t, err)
	mockGraph.AssertExpectations(t)
}

func TestGroupService_InviteToGroup_NotOwner(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	mockGraph.On("IsOwner", ctx, "group1", "bob").Return(false, nil)

	err := service.InviteToGroup(ctx, "group1", "bob", "carol")

	assert.Equal(t, KindUnauthorized, KindOf(err))
	mockGraph.AssertNotCalled(t, "Invite", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupService_InviteToGroup_StartedGroup(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	deadline := time.Now().UTC().Add(time.Hour)
	started := startedGroup(1, 3, deadline)

	mockGraph.On("IsOwner", ctx, "group1", "owner").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(started, nil)

	err := service.InviteToGroup(ctx, "group1", "owner", "dave")

	assert.Equal(t, KindInvalidState, KindOf(err))
	mockGraph.AssertNotCalled(t, "Invite", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupService_AcceptInvite(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{ID: "group1", Owner: "alice", Status: models.GroupStatusWaiting}

	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)
	mockGraph.On("AcceptInvite", ctx, "group1", "bob").Return(true, nil)

	accepted, err := service.AcceptInvite(ctx, "group1", "bob")

	assert.NoError(t, err)
	assert.True(t, accepted)
}

func TestGroupService_AcceptInvite_NoInvite(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{ID: "group1", Owner: "alice", Status: models.GroupStatusWaiting}

	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)
	mockGraph.On("AcceptInvite", ctx, "group1", "mallory").Return(false, nil)

	accepted, err := service.AcceptInvite(ctx, "group1", "mallory")

	assert.NoError(t, err)
	assert.False(t, accepted)
}

func TestGroupService_LeaveGroup_OwnerCannotLeave(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{ID: "group1", Owner: "alice", Status: models.GroupStatusWaiting}

	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)

	err := service.LeaveGroup(ctx, "group1", "alice")

	assert.Equal(t, KindInvalidState, KindOf(err))
	mockGraph.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupService_LeaveGroup(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{ID: "group1", Owner: "alice", Status: models.GroupStatusWaiting}

	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)
	mockGraph.On("IsParticipant", ctx, "group1", "bob").Return(true, nil)
	mockGraph.On("RemoveParticipant", ctx, "group1", "bob").Return(nil)

	err := service.LeaveGroup(ctx, "group1", "bob")

	assert.NoError(t, err)
	mockGraph.AssertExpectations(t)
}

func TestGroupService_StartGroup(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{
		ID: "group1", Name: "family fund", Owner: "alice",
		Status: models.GroupStatusWaiting, PoolAmount: 12000, TotalMonths: 3,
	}
	participants := []*models.Participant{
		{GroupID: "group1", Username: "alice"},
		{GroupID: "group1", Username: "bob"},
		{GroupID: "group1", Username: "carol"},
	}

	mockGraph.On("IsOwner", ctx, "group1", "alice").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)
	mockGraph.On("Participants", ctx, "group1").Return(participants, nil)
	mockGroups.On("Start", ctx, "group1", mock.MatchedBy(func(deadline time.Time) bool {
		return deadline.After(time.Now().UTC())
	})).Return(true, nil)

	err := service.StartGroup(ctx, "group1", "alice")

	assert.NoError(t, err)
	mockGroups.AssertExpectations(t)
}

func TestGroupService_StartGroup_InsufficientParticipants(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	waiting := &models.Group{
		ID: "group1", Owner: "alice",
		Status: models.GroupStatusWaiting, PoolAmount: 12000, TotalMonths: 3,
	}

	mockGraph.On("IsOwner", ctx, "group1", "alice").Return(true, nil)
	mockGroups.On("GetByID", ctx, "group1").Return(waiting, nil)
	mockGraph.On("Participants", ctx, "group1").Return([]*models.Participant{
		{GroupID: "group1", Username: "alice"},
		{GroupID: "group1", Username: "bob"},
	}, nil)

	err := service.StartGroup(ctx, "group1", "alice")

	assert.Equal(t, KindInvalidState, KindOf(err))
	mockGroups.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupService_GetGroup_ParticipantGated(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	mockGraph.On("IsParticipant", ctx, "group1", "mallory").Return(false, nil)

	group, err := service.GetGroup(ctx, "group1", "mallory")

	assert.Nil(t, group)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	mockGroups.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGroupService_GetWinners(t *testing.T) {
	ctx := context.Background()

	mockGroups := new(MockGroupStore)
	mockGraph := new(MockParticipantGraph)

	service := newGroupServiceForTest(mockGroups, mockGraph)

	winners := []*models.GroupWinner{
		{Username: "bob", Month: 1, Amount: 9000},
		{Username: "alice", Month: 2, Amount: 12000},
	}

	mockGraph.On("IsParticipant", ctx, "group1", "alice").Return(true, nil)
	mockGraph.On("Winners", ctx, "group1").Return(winners, nil)

	got, err := service.GetWinners(ctx, "group1", "alice")

	assert.NoError(t, err)
	assert.Equal(t, winners, got)
}
