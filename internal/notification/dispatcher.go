package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"hijackwatch/internal/model"
)

const defaultQueueSize = 64

// Dispatcher fans alerts out to a set of notifiers from its own goroutine.
// Enqueueing never blocks: when the queue is full the alert is dropped and
// counted, so a slow or failing channel cannot back-pressure the scan loop.
type Dispatcher struct {
	notifiers []Notifier
	queue     chan Alert
	timeout   time.Duration

	// OnDrop is called when an alert is dropped on a full queue. Optional.
	OnDrop func()
}

// NewDispatcher creates a dispatcher over the given notifiers. queueSize <= 0
// defaults to 64.
func NewDispatcher(queueSize int, notifiers ...Notifier) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan Alert, queueSize),
		timeout:   10 * time.Second,
	}
}

// Run drains the queue until ctx is cancelled. Delivery errors are logged
// and never propagate.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert) {
	for _, n := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := n.Send(sendCtx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
		cancel()
	}
}

// Enqueue queues an alert for async delivery, dropping it if the queue is
// full.
func (d *Dispatcher) Enqueue(alert Alert) {
	select {
	case d.queue <- alert:
	default:
		if d.OnDrop != nil {
			d.OnDrop()
		}
		log.Printf("[notify] queue full, dropped alert: %s", alert.Title)
	}
}

// NotifyTrade shapes a trade lifecycle event into an alert and enqueues it.
// Shaped for the trader's notification hook; stop-loss exits escalate to
// WARNING, everything else is informational.
func (d *Dispatcher) NotifyTrade(ev model.HijackEvent, pos model.Position) {
	a := Alert{
		Level:  AlertInfo,
		Ticker: ev.Ticker,
		Event:  ev.Type,
		Price:  ev.Price,
		Force:  ev.Force,
	}
	if ev.Type == model.EventEntry {
		a.Title = "Hijack entry: " + ev.Ticker
		a.Message = fmt.Sprintf("qty %.6f @ %.4f, force %.4f", pos.Quantity, pos.EntryPrice, ev.Force)
		a.Quantity = pos.Quantity
	} else {
		a.Title = "Position closed: " + ev.Ticker
		a.Message = fmt.Sprintf("%s @ %.4f, profit %+.2f USD", ev.Type, ev.Price, pos.Profit)
		a.Profit = pos.Profit
		if ev.Type == model.EventStopLoss {
			a.Level = AlertWarning
		}
	}
	d.Enqueue(a)
}
