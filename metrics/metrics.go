package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chitfund/events"
)

var (
	bidsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_bids_placed_total",
		Help: "Total number of accepted bids",
	})

	monthsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitfund_months_settled_total",
		Help: "Total number of settled months by outcome",
	}, []string{"outcome"})

	payoutAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_payout_amount_total",
		Help: "Total amount paid out to winners",
	})

	deposits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_deposits_total",
		Help: "Total number of ledger deposits",
	})

	groupsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitfund_groups_started_total",
		Help: "Total number of groups that began their auction cycle",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe wires the engine's event stream into the counters
func Observe(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBidPlaced, func(ctx context.Context, event events.Event) {
		bidsPlaced.Inc()
	})

	bus.Subscribe(events.EventTypeMonthSettled, func(ctx context.Context, event events.Event) {
		settled, ok := event.(events.MonthSettledEvent)
		if !ok {
			return
		}
		outcome := "auction"
		if settled.Completed {
			outcome = "final"
		}
		monthsSettled.WithLabelValues(outcome).Inc()
		payoutAmount.Add(float64(settled.WinningAmount))
	})

	bus.Subscribe(events.EventTypeFundsAdded, func(ctx context.Context, event events.Event) {
		deposits.Inc()
	})

	bus.Subscribe(events.EventTypeGroupStarted, func(ctx context.Context, event events.Event) {
		groupsStarted.Inc()
	})
}
