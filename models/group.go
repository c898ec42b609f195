package models

import (
	"time"
)

// GroupStatus represents the lifecycle state of a chit group
type GroupStatus string

const (
	GroupStatusWaiting   GroupStatus = "waiting"
	GroupStatusStarted   GroupStatus = "started"
	GroupStatusCompleted GroupStatus = "completed"
)

// Group represents a chit fund group document
type Group struct {
	ID              string      `bson:"_id,omitempty"`
	Name            string      `bson:"name"`
	Owner           string      `bson:"owner"`
	PoolAmount      int64       `bson:"pool_amount"`
	TotalMonths     int         `bson:"total_months"`
	Status          GroupStatus `bson:"status"`
	CurrentMonth    int         `bson:"current_month"`
	ShuffleDeadline *time.Time  `bson:"shuffle_deadline,omitempty"`
	CreatedAt       time.Time   `bson:"created_at"`
}

// IsStarted reports whether the group is accepting bids and settlements
func (g *Group) IsStarted() bool {
	return g.Status == GroupStatusStarted
}

// IsCompleted reports whether the group has finished all its months
func (g *Group) IsCompleted() bool {
	return g.Status == GroupStatusCompleted
}

// IsAuctionDue reports whether the stored deadline has been reached
func (g *Group) IsAuctionDue(now time.Time) bool {
	if g.Status != GroupStatusStarted || g.ShuffleDeadline == nil {
		return false
	}
	return !now.Before(*g.ShuffleDeadline)
}

// IsFinalMonth reports whether the current month is the last one to settle
func (g *Group) IsFinalMonth() bool {
	return g.CurrentMonth >= g.TotalMonths
}
