package service

import (
	"context"
	"time"

	"chitfund/events"
	"chitfund/models"
)

// A chit group runs one auction per participant, so membership is capped by
// the month count
const maxGroupMonths = 12

type groupService struct {
	groups          GroupStore
	graph           ParticipantGraph
	bus             *events.Bus
	auctionInterval time.Duration
}

// NewGroupService creates the group lifecycle service. The auction interval
// sets the first month's deadline when a group starts.
func NewGroupService(groups GroupStore, graph ParticipantGraph, bus *events.Bus, auctionInterval time.Duration) GroupService {
	return &groupService{
		groups:          groups,
		graph:           graph,
		bus:             bus,
		auctionInterval: auctionInterval,
	}
}

// CreateGroup creates a waiting group owned (and joined) by the caller
func (s *groupService) CreateGroup(ctx context.Context, owner, name string, poolAmount int64, totalMonths int) (*models.Group, error) {
	if poolAmount <= 0 {
		return nil, NewError(KindInvalidAmount, "pool amount must be positive, got %d", poolAmount)
	}
	if totalMonths < 1 || totalMonths > maxGroupMonths {
		return nil, NewError(KindInvalidAmount, "total months must be between 1 and %d, got %d", maxGroupMonths, totalMonths)
	}

	group := &models.Group{
		Name:        name,
		Owner:       owner,
		PoolAmount:  poolAmount,
		TotalMonths: totalMonths,
		Status:      models.GroupStatusWaiting,
	}

	if err := s.groups.Create(ctx, group); err != nil {
		return nil, WrapStoreError(err, "failed to create group %q", name)
	}

	if err := s.graph.CreateGroup(ctx, group.ID, name, owner); err != nil {
		return nil, WrapStoreError(err, "failed to create group graph for %s", group.ID)
	}

	return group, nil
}

// InviteToGroup records a pending invitation. Owner-only, waiting groups only.
func (s *groupService) InviteToGroup(ctx context.Context, groupID, inviter, username string) error {
	isOwner, err := s.graph.IsOwner(ctx, groupID, inviter)
	if err != nil {
		return WrapStoreError(err, "failed to check group ownership")
	}
	if !isOwner {
		return NewError(KindUnauthorized, "user %q does not own group %s", inviter, groupID)
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return NewError(KindNotFound, "group %s not found", groupID)
	}
	if group.Status != models.GroupStatusWaiting {
		return NewError(KindInvalidState, "group %s is no longer accepting members (status: %s)", groupID, group.Status)
	}

	isParticipant, err := s.graph.IsParticipant(ctx, groupID, username)
	if err != nil {
		return WrapStoreError(err, "failed to check group membership")
	}
	if isParticipant {
		return NewError(KindInvalidState, "user %q is already a participant of group %s", username, groupID)
	}

	pending, err := s.graph.HasPendingInvite(ctx, groupID, username)
	if err != nil {
		return WrapStoreError(err, "failed to check pending invites")
	}
	if pending {
		return NewError(KindInvalidState, "user %q already has a pending invite to group %s", username, groupID)
	}

	if err := s.graph.Invite(ctx, groupID, inviter, username); err != nil {
		return WrapStoreError(err, "failed to invite %q to group %s", username, groupID)
	}

	return nil
}

// AcceptInvite converts an invitation into membership. Returns false when no
// invitation exists.
func (s *groupService) AcceptInvite(ctx context.Context, groupID, username string) (bool, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return false, NewError(KindNotFound, "group %s not found", groupID)
	}
	if group.Status != models.GroupStatusWaiting {
		return false, NewError(KindInvalidState, "group %s is no longer accepting members (status: %s)", groupID, group.Status)
	}

	accepted, err := s.graph.AcceptInvite(ctx, groupID, username)
	if err != nil {
		return false, WrapStoreError(err, "failed to accept invite for %q in group %s", username, groupID)
	}

	return accepted, nil
}

// RejectInvite removes a pending invitation
func (s *groupService) RejectInvite(ctx context.Context, groupID, username string) error {
	if err := s.graph.RejectInvite(ctx, groupID, username); err != nil {
		return WrapStoreError(err, "failed to reject invite for %q in group %s", username, groupID)
	}
	return nil
}

// LeaveGroup removes the caller's membership. Owners cannot leave, and nobody
// leaves a started group.
func (s *groupService) LeaveGroup(ctx context.Context, groupID, username string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return NewError(KindNotFound, "group %s not found", groupID)
	}
	if group.Status != models.GroupStatusWaiting {
		return NewError(KindInvalidState, "cannot leave group %s after it has started", groupID)
	}
	if group.Owner == username {
		return NewError(KindInvalidState, "owner %q cannot leave group %s", username, groupID)
	}

	isParticipant, err := s.graph.IsParticipant(ctx, groupID, username)
	if err != nil {
		return WrapStoreError(err, "failed to check group membership")
	}
	if !isParticipant {
		return NewError(KindUnauthorized, "user %q is not a participant of group %s", username, groupID)
	}

	if err := s.graph.RemoveParticipant(ctx, groupID, username); err != nil {
		return WrapStoreError(err, "failed to remove %q from group %s", username, groupID)
	}

	return nil
}

// StartGroup begins the auction cycle. Requires exactly one participant per
// month so every participant can win once.
func (s *groupService) StartGroup(ctx context.Context, groupID, owner string) error {
	isOwner, err := s.graph.IsOwner(ctx, groupID, owner)
	if err != nil {
		return WrapStoreError(err, "failed to check group ownership")
	}
	if !isOwner {
		return NewError(KindUnauthorized, "user %q does not own group %s", owner, groupID)
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return NewError(KindNotFound, "group %s not found", groupID)
	}
	if group.Status != models.GroupStatusWaiting {
		return NewError(KindInvalidState, "group %s has already started (status: %s)", groupID, group.Status)
	}

	participants, err := s.graph.Participants(ctx, groupID)
	if err != nil {
		return WrapStoreError(err, "failed to load participants for group %s", groupID)
	}
	if len(participants) != group.TotalMonths {
		return NewError(KindInvalidState, "group %s needs %d participants to start, has %d", groupID, group.TotalMonths, len(participants))
	}

	deadline := time.Now().UTC().Add(s.auctionInterval)
	started, err := s.groups.Start(ctx, groupID, deadline)
	if err != nil {
		return WrapStoreError(err, "failed to start group %s", groupID)
	}
	if !started {
		return NewError(KindInvalidState, "group %s has already started", groupID)
	}

	s.bus.Emit(ctx, events.GroupStartedEvent{
		GroupID:     groupID,
		Name:        group.Name,
		TotalMonths: group.TotalMonths,
		PoolAmount:  group.PoolAmount,
	})

	return nil
}

// GetGroup returns the group state, participant-gated
func (s *groupService) GetGroup(ctx context.Context, groupID, username string) (*models.Group, error) {
	if err := s.requireParticipant(ctx, groupID, username); err != nil {
		return nil, err
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get group %s", groupID)
	}
	if group == nil {
		return nil, NewError(KindNotFound, "group %s not found", groupID)
	}

	return group, nil
}

// GetParticipants returns the group's membership with win annotations
func (s *groupService) GetParticipants(ctx context.Context, groupID, username string) ([]*models.Participant, error) {
	if err := s.requireParticipant(ctx, groupID, username); err != nil {
		return nil, err
	}

	participants, err := s.graph.Participants(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to load participants for group %s", groupID)
	}

	return participants, nil
}

// GetWinners returns the group's win history ordered by month
func (s *groupService) GetWinners(ctx context.Context, groupID, username string) ([]*models.GroupWinner, error) {
	if err := s.requireParticipant(ctx, groupID, username); err != nil {
		return nil, err
	}

	winners, err := s.graph.Winners(ctx, groupID)
	if err != nil {
		return nil, WrapStoreError(err, "failed to load winners for group %s", groupID)
	}

	return winners, nil
}

// GetPendingInvites returns the user's open invitations
func (s *groupService) GetPendingInvites(ctx context.Context, username string) ([]*models.GroupInvite, error) {
	invites, err := s.graph.PendingInvites(ctx, username)
	if err != nil {
		return nil, WrapStoreError(err, "failed to load pending invites for %q", username)
	}

	return invites, nil
}

func (s *groupService) requireParticipant(ctx context.Context, groupID, username string) error {
	isParticipant, err := s.graph.IsParticipant(ctx, groupID, username)
	if err != nil {
		return WrapStoreError(err, "failed to check group membership")
	}
	if !isParticipant {
		return NewError(KindUnauthorized, "user %q is not a participant of group %s", username, groupID)
	}
	return nil
}
