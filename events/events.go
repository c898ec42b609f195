package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBidPlaced    EventType = "bid_placed"
	EventTypeMonthSettled EventType = "month_settled"
	EventTypeFundsAdded   EventType = "funds_added"
	EventTypeGroupStarted EventType = "group_started"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Group() string
}

// BidPlacedEvent is emitted when a bid is accepted for the active month
type BidPlacedEvent struct {
	GroupID  string
	Username string
	Amount   int64
	Month    int
}

func (e BidPlacedEvent) Type() EventType { return EventTypeBidPlaced }
func (e BidPlacedEvent) Group() string   { return e.GroupID }

// MonthSettledEvent is emitted after a month's winner has been paid
type MonthSettledEvent struct {
	GroupID       string
	Winner        string
	Month         int
	WinningAmount int64
	Completed     bool
}

func (e MonthSettledEvent) Type() EventType { return EventTypeMonthSettled }
func (e MonthSettledEvent) Group() string   { return e.GroupID }

// FundsAddedEvent is emitted after a successful ledger deposit
type FundsAddedEvent struct {
	Username   string
	Amount     int64
	NewBalance int64
}

func (e FundsAddedEvent) Type() EventType { return EventTypeFundsAdded }
func (e FundsAddedEvent) Group() string   { return "" }

// GroupStartedEvent is emitted when a group leaves the waiting state
type GroupStartedEvent struct {
	GroupID     string
	Name        string
	TotalMonths int
	PoolAmount  int64
}

func (e GroupStartedEvent) Type() EventType { return EventTypeGroupStarted }
func (e GroupStartedEvent) Group() string   { return e.GroupID }

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make([]Handler, 0)
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus only after the transaction commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush is called after a successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Events should outlive the transaction context
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard is called after a rollback to clear pending state
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
