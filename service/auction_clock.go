package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// AuctionClock periodically scans for groups whose auction deadline has passed
// and settles them. Every deadline eventually fires even with no user traffic.
type AuctionClock struct {
	groups       GroupStore
	settlement   SettlementService
	pollInterval time.Duration
}

// NewAuctionClock creates a new auction clock worker
func NewAuctionClock(groups GroupStore, settlement SettlementService, pollInterval time.Duration) *AuctionClock {
	return &AuctionClock{
		groups:       groups,
		settlement:   settlement,
		pollInterval: pollInterval,
	}
}

// Start begins the clock worker and returns a cleanup function
func (c *AuctionClock) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.Info("Auction clock worker started")

		for {
			if err := c.settleDueGroups(ctx); err != nil {
				log.Errorf("Error settling due groups: %v", err)
			}

			select {
			case <-ctx.Done():
				log.Info("Auction clock worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Auction clock worker shutting down (stop requested)...")
				return
			case <-time.After(c.pollInterval):
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// settleDueGroups closes the month for every group past its deadline. Each
// group settles independently so one failure does not block the rest.
func (c *AuctionClock) settleDueGroups(ctx context.Context) error {
	due, err := c.groups.ListDue(ctx, time.Now().UTC())
	if err != nil {
		return WrapStoreError(err, "failed to list due groups")
	}

	if len(due) == 0 {
		return nil
	}

	log.Infof("Found %d groups due for settlement", len(due))

	var successCount, failureCount int
	for _, group := range due {
		// The owner is always a participant, so settlement runs under the
		// owner's identity
		executed, err := c.settlement.CloseMonth(ctx, group.ID, group.Owner)
		if err != nil {
			log.WithError(err).WithField("groupID", group.ID).Error("Failed to settle group")
			failureCount++
			continue
		}
		if executed {
			successCount++
		}
	}

	log.WithFields(log.Fields{
		"due":     len(due),
		"settled": successCount,
		"failed":  failureCount,
	}).Info("Completed auction clock sweep")

	return nil
}
