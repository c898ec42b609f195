package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"chitfund/events"
)

// envelope is the wire format for outbound notifications
type envelope struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Notifier bridges internal engine events to NATS subjects. Group-scoped
// events go to chitfund.group.<id>; ledger events go to chitfund.ledger.
type Notifier struct {
	client *Client
}

// New creates a notifier on an established NATS client
func New(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Observe subscribes the notifier to every published event type
func (n *Notifier) Observe(bus *events.Bus) {
	handler := func(ctx context.Context, event events.Event) {
		n.notify(event)
	}

	bus.Subscribe(events.EventTypeBidPlaced, handler)
	bus.Subscribe(events.EventTypeMonthSettled, handler)
	bus.Subscribe(events.EventTypeFundsAdded, handler)
	bus.Subscribe(events.EventTypeGroupStarted, handler)
}

func (n *Notifier) notify(event events.Event) {
	data, err := json.Marshal(envelope{
		EventType: string(event.Type()),
		Timestamp: time.Now().UTC(),
		Payload:   event,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to marshal notification")
		return
	}

	n.client.Publish(subjectFor(event), data)
}

func subjectFor(event events.Event) string {
	if groupID := event.Group(); groupID != "" {
		return fmt.Sprintf("chitfund.group.%s", groupID)
	}
	return "chitfund.ledger"
}
