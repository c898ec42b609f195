package groupstore

import (
	"context"
	"fmt"
	"time"

	"chitfund/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const groupCollection = "groups"

// GroupRepository implements the service.GroupStore interface against MongoDB
type GroupRepository struct {
	coll *mongo.Collection
}

// NewGroupRepository creates a group repository on the store's database
func NewGroupRepository(store *Store) *GroupRepository {
	return &GroupRepository{coll: store.database.Collection(groupCollection)}
}

// Create inserts a new group document and fills in its generated ID
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = primitive.NewObjectID().Hex()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	if _, err := r.coll.InsertOne(ctx, group); err != nil {
		return fmt.Errorf("failed to insert group %q: %w", group.Name, err)
	}

	return nil
}

// GetByID retrieves a group, nil when not found
func (r *GroupRepository) GetByID(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	err := r.coll.FindOne(ctx, bson.M{"_id": groupID}).Decode(&group)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	return &group, nil
}

// Start transitions waiting -> started, setting the first month and deadline
func (r *GroupRepository) Start(ctx context.Context, groupID string, deadline time.Time) (bool, error) {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID, "status": models.GroupStatusWaiting},
		bson.M{"$set": bson.M{
			"status":           models.GroupStatusStarted,
			"current_month":    1,
			"shuffle_deadline": deadline,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to start group %s: %w", groupID, err)
	}

	return result.ModifiedCount > 0, nil
}

// AdvanceMonth conditionally advances past the settled month. The filter is
// keyed on the settled month so a retry after a partial settlement matches
// zero documents and is a clean no-op.
func (r *GroupRepository) AdvanceMonth(ctx context.Context, groupID string, settledMonth int, nextDeadline time.Time) error {
	// Final month: flip to completed instead of incrementing past the end
	result, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":           groupID,
			"status":        models.GroupStatusStarted,
			"current_month": settledMonth,
			"total_months":  settledMonth,
		},
		bson.M{
			"$set":   bson.M{"status": models.GroupStatusCompleted},
			"$unset": bson.M{"shuffle_deadline": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to complete group %s after month %d: %w", groupID, settledMonth, err)
	}
	if result.ModifiedCount > 0 {
		return nil
	}

	_, err = r.coll.UpdateOne(ctx,
		bson.M{
			"_id":           groupID,
			"status":        models.GroupStatusStarted,
			"current_month": settledMonth,
		},
		bson.M{
			"$inc": bson.M{"current_month": 1},
			"$set": bson.M{"shuffle_deadline": nextDeadline},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to advance group %s past month %d: %w", groupID, settledMonth, err)
	}

	return nil
}

// Complete force-completes a group whose month counter ran past the end
func (r *GroupRepository) Complete(ctx context.Context, groupID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{
			"$set":   bson.M{"status": models.GroupStatusCompleted},
			"$unset": bson.M{"shuffle_deadline": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to complete group %s: %w", groupID, err)
	}

	return nil
}

// ListDue returns started groups whose deadline is at or before now
func (r *GroupRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Group, error) {
	cursor, err := r.coll.Find(ctx, bson.M{
		"status":           models.GroupStatusStarted,
		"shuffle_deadline": bson.M{"$lte": now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list due groups: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []*models.Group
	for cursor.Next(ctx) {
		var group models.Group
		if err := cursor.Decode(&group); err != nil {
			return nil, fmt.Errorf("failed to decode group: %w", err)
		}
		groups = append(groups, &group)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due groups: %w", err)
	}

	return groups, nil
}
