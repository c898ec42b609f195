package graphstore

import (
	"context"
	"fmt"
	"time"

	"chitfund/models"
)

// ParticipantRepository implements the service.ParticipantGraph interface
// against the Neo4j store
type ParticipantRepository struct {
	store *Store
}

// NewParticipantRepository creates a participant repository on the store
func NewParticipantRepository(store *Store) *ParticipantRepository {
	return &ParticipantRepository{store: store}
}

// CreateUser ensures a user node exists
func (r *ParticipantRepository) CreateUser(ctx context.Context, username string) error {
	result, session, err := r.store.run(ctx,
		`MERGE (u:User {username: $username})`,
		map[string]any{"username": username},
	)
	if err != nil {
		return fmt.Errorf("failed to create user node %q: %w", username, err)
	}
	defer session.Close(ctx)

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to create user node %q: %w", username, err)
	}
	return nil
}

// CreateGroup creates the group node with ownership and membership edges for the owner
func (r *ParticipantRepository) CreateGroup(ctx context.Context, groupID, name, owner string) error {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $owner})
		 CREATE (g:Group {id: $groupId, name: $name})
		 CREATE (u)-[:OWNS]->(g)
		 CREATE (u)-[:PARTICIPATES_IN {joinedAt: $now}]->(g)`,
		map[string]any{
			"owner":   owner,
			"groupId": groupID,
			"name":    name,
			"now":     time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create group node %s: %w", groupID, err)
	}
	defer session.Close(ctx)

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to create group node %s: %w", groupID, err)
	}
	return nil
}

func (r *ParticipantRepository) existsQuery(ctx context.Context, cypher string, params map[string]any) (bool, error) {
	result, session, err := r.store.run(ctx, cypher, params)
	if err != nil {
		return false, err
	}
	defer session.Close(ctx)

	record, err := result.Single(ctx)
	if err != nil {
		return false, err
	}

	value, _ := record.Get("exists")
	exists, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type %T", value)
	}
	return exists, nil
}

// IsParticipant reports whether the user holds a membership edge
func (r *ParticipantRepository) IsParticipant(ctx context.Context, groupID, username string) (bool, error) {
	exists, err := r.existsQuery(ctx,
		`OPTIONAL MATCH (u:User {username: $username})-[p:PARTICIPATES_IN]->(g:Group {id: $groupId})
		 RETURN p IS NOT NULL AS exists`,
		map[string]any{"username": username, "groupId": groupID},
	)
	if err != nil {
		return false, fmt.Errorf("failed to check membership of %q in group %s: %w", username, groupID, err)
	}
	return exists, nil
}

// IsOwner reports whether the user owns the group
func (r *ParticipantRepository) IsOwner(ctx context.Context, groupID, username string) (bool, error) {
	exists, err := r.existsQuery(ctx,
		`OPTIONAL MATCH (u:User {username: $username})-[o:OWNS]->(g:Group {id: $groupId})
		 RETURN o IS NOT NULL AS exists`,
		map[string]any{"username": username, "groupId": groupID},
	)
	if err != nil {
		return false, fmt.Errorf("failed to check ownership of %q for group %s: %w", username, groupID, err)
	}
	return exists, nil
}

// Invite records a pending invitation edge
func (r *ParticipantRepository) Invite(ctx context.Context, groupID, invitedBy, username string) error {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $username})
		 MATCH (g:Group {id: $groupId})
		 MERGE (u)-[r:INVITED_TO]->(g)
		 ON CREATE SET r.invitedBy = $invitedBy, r.invitedAt = $now`,
		map[string]any{
			"username":  username,
			"groupId":   groupID,
			"invitedBy": invitedBy,
			"now":       time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to invite %q to group %s: %w", username, groupID, err)
	}
	defer session.Close(ctx)

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to invite %q to group %s: %w", username, groupID, err)
	}
	return nil
}

// HasPendingInvite reports whether the user has an open invitation
func (r *ParticipantRepository) HasPendingInvite(ctx context.Context, groupID, username string) (bool, error) {
	exists, err := r.existsQuery(ctx,
		`OPTIONAL MATCH (u:User {username: $username})-[i:INVITED_TO]->(g:Group {id: $groupId})
		 RETURN i IS NOT NULL AS exists`,
		map[string]any{"username": username, "groupId": groupID},
	)
	if err != nil {
		return false, fmt.Errorf("failed to check invite of %q for group %s: %w", username, groupID, err)
	}
	return exists, nil
}

// PendingInvites returns the user's open invitations
func (r *ParticipantRepository) PendingInvites(ctx context.Context, username string) ([]*models.GroupInvite, error) {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $username})-[i:INVITED_TO]->(g:Group)
		 RETURN g.id AS groupId, i.invitedBy AS invitedBy, i.invitedAt AS invitedAt`,
		map[string]any{"username": username},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invites for %q: %w", username, err)
	}
	defer session.Close(ctx)

	var invites []*models.GroupInvite
	for result.Next(ctx) {
		record := result.Record()
		invite := &models.GroupInvite{Username: username}
		if v, ok := record.Get("groupId"); ok {
			invite.GroupID, _ = v.(string)
		}
		if v, ok := record.Get("invitedBy"); ok {
			invite.InvitedBy, _ = v.(string)
		}
		if v, ok := record.Get("invitedAt"); ok {
			if t, ok := v.(time.Time); ok {
				invite.InvitedAt = t
			}
		}
		invites = append(invites, invite)
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending invites for %q: %w", username, err)
	}

	return invites, nil
}

// AcceptInvite converts an invitation into membership. Returns false when no
// invitation exists.
func (r *ParticipantRepository) AcceptInvite(ctx context.Context, groupID, username string) (bool, error) {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $username})-[i:INVITED_TO]->(g:Group {id: $groupId})
		 DELETE i
		 CREATE (u)-[:PARTICIPATES_IN {joinedAt: $now}]->(g)
		 RETURN 1 AS accepted`,
		map[string]any{
			"username": username,
			"groupId":  groupID,
			"now":      time.Now().UTC(),
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to accept invite for %q to group %s: %w", username, groupID, err)
	}
	defer session.Close(ctx)

	accepted := false
	for result.Next(ctx) {
		accepted = true
	}
	if err := result.Err(); err != nil {
		return false, fmt.Errorf("failed to accept invite for %q to group %s: %w", username, groupID, err)
	}

	return accepted, nil
}

// RejectInvite removes a pending invitation
func (r *ParticipantRepository) RejectInvite(ctx context.Context, groupID, username string) error {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $username})-[i:INVITED_TO]->(g:Group {id: $groupId})
		 DELETE i`,
		map[string]any{"username": username, "groupId": groupID},
	)
	if err != nil {
		return fmt.Errorf("failed to reject invite for %q to group %s: %w", username, groupID, err)
	}
	defer session.Close(ctx)

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to reject invite for %q to group %s: %w", username, groupID, err)
	}
	return nil
}

// RemoveParticipant deletes the membership edge
func (r *ParticipantRepository) RemoveParticipant(ctx context.Context, groupID, username string) error {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $username})-[p:PARTICIPATES_IN]->(g:Group {id: $groupId})
		 DELETE p`,
		map[string]any{"username": username, "groupId": groupID},
	)
	if err != nil {
		return fmt.Errorf("failed to remove %q from group %s: %w", username, groupID, err)
	}
	defer session.Close(ctx)

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to remove %q from group %s: %w", username, groupID, err)
	}
	return nil
}

// Participants returns all membership edges with win annotations
func (r *ParticipantRepository) Participants(ctx context.Context, groupID string) ([]*models.Participant, error) {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User)-[p:PARTICIPATES_IN]->(g:Group {id: $groupId})
		 RETURN u.username AS username, p.joinedAt AS joinedAt,
		        p.wonMonth AS wonMonth, p.wonAmount AS wonAmount, p.wonAt AS wonAt
		 ORDER BY p.joinedAt ASC`,
		map[string]any{"groupId": groupID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants of group %s: %w", groupID, err)
	}
	defer session.Close(ctx)

	var participants []*models.Participant
	for result.Next(ctx) {
		record := result.Record()
		participant := &models.Participant{GroupID: groupID}
		if v, ok := record.Get("username"); ok {
			participant.Username, _ = v.(string)
		}
		if v, ok := record.Get("joinedAt"); ok {
			if t, ok := v.(time.Time); ok {
				participant.JoinedAt = t
			}
		}
		if v, ok := record.Get("wonMonth"); ok && v != nil {
			if n, ok := v.(int64); ok {
				month := int(n)
				participant.WonMonth = &month
			}
		}
		if v, ok := record.Get("wonAmount"); ok && v != nil {
			if n, ok := v.(int64); ok {
				amount := n
				participant.WonAmount = &amount
			}
		}
		if v, ok := record.Get("wonAt"); ok && v != nil {
			if t, ok := v.(time.Time); ok {
				wonAt := t
				participant.WonAt = &wonAt
			}
		}
		participants = append(participants, participant)
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants of group %s: %w", groupID, err)
	}

	return participants, nil
}

// NeverWon returns usernames of participants without a recorded win
func (r *ParticipantRepository) NeverWon(ctx context.Context, groupID string) ([]string, error) {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User)-[p:PARTICIPATES_IN]->(g:Group {id: $groupId})
		 WHERE p.wonMonth IS NULL
		 RETURN u.username AS username
		 ORDER BY u.username ASC`,
		map[string]any{"groupId": groupID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible participants of group %s: %w", groupID, err)
	}
	defer session.Close(ctx)

	var usernames []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("username"); ok {
			if username, ok := v.(string); ok {
				usernames = append(usernames, username)
			}
		}
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate eligible participants of group %s: %w", groupID, err)
	}

	return usernames, nil
}

// RecordWin sets the win annotations on the participant edge. Overwriting the
// same values makes a settlement retry harmless.
func (r *ParticipantRepository) RecordWin(ctx context.Context, groupID, username string, month int, amount int64, wonAt time.Time) error {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User {username: $username})-[p:PARTICIPATES_IN]->(g:Group {id: $groupId})
		 SET p.wonMonth = $month, p.wonAmount = $amount, p.wonAt = $wonAt`,
		map[string]any{
			"username": username,
			"groupId":  groupID,
			"month":    month,
			"amount":   amount,
			"wonAt":    wonAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to record win for %q in group %s: %w", username, groupID, err)
	}
	defer session.Close(ctx)

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to record win for %q in group %s: %w", username, groupID, err)
	}
	return nil
}

// Winners returns the group's win history ordered by month
func (r *ParticipantRepository) Winners(ctx context.Context, groupID string) ([]*models.GroupWinner, error) {
	result, session, err := r.store.run(ctx,
		`MATCH (u:User)-[p:PARTICIPATES_IN]->(g:Group {id: $groupId})
		 WHERE p.wonMonth IS NOT NULL
		 RETURN u.username AS username, p.wonMonth AS month, p.wonAmount AS amount, p.wonAt AS wonAt
		 ORDER BY p.wonMonth ASC`,
		map[string]any{"groupId": groupID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get winners of group %s: %w", groupID, err)
	}
	defer session.Close(ctx)

	var winners []*models.GroupWinner
	for result.Next(ctx) {
		record := result.Record()
		winner := &models.GroupWinner{}
		if v, ok := record.Get("username"); ok {
			winner.Username, _ = v.(string)
		}
		if v, ok := record.Get("month"); ok {
			if n, ok := v.(int64); ok {
				winner.Month = int(n)
			}
		}
		if v, ok := record.Get("amount"); ok {
			if n, ok := v.(int64); ok {
				winner.Amount = n
			}
		}
		if v, ok := record.Get("wonAt"); ok {
			if t, ok := v.(time.Time); ok {
				winner.WonAt = t
			}
		}
		winners = append(winners, winner)
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate winners of group %s: %w", groupID, err)
	}

	return winners, nil
}
