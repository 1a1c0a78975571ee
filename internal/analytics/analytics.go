// Package analytics broadcasts document lifecycle events to reporting
// sinks. Publishing is fire-and-forget: a slow or failing sink never
// blocks or fails the billing path.
package analytics

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventInvoiceFinalized   EventKind = "invoice.finalized"
	EventCreditNoteCreated  EventKind = "credit_note.created"
	EventSubscriptionOpened EventKind = "subscription.opened"
)

// Event is the reporting payload for one lifecycle transition.
type Event struct {
	Kind         EventKind
	Number       string
	Total        int64
	Currency     string
	CountryCode  string
	AccountingID string
}

// Publisher is the producer-side contract.
type Publisher interface {
	Publish(event Event)
}

// Sink receives events on the broadcaster's consumer goroutine.
type Sink interface {
	Deliver(ctx context.Context, event Event)
}

type Broadcaster struct {
	log    *zap.Logger
	events chan Event
	sinks  []Sink
	done   chan struct{}
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Sinks []Sink `group:"analytics_sinks"`
}

func NewBroadcaster(p Params) *Broadcaster {
	return &Broadcaster{
		log:    p.Log.Named("analytics"),
		events: make(chan Event, 256),
		sinks:  p.Sinks,
		done:   make(chan struct{}),
	}
}

// Publish enqueues the event, dropping it when the buffer is full.
func (b *Broadcaster) Publish(event Event) {
	select {
	case b.events <- event:
	default:
		b.log.Warn("analytics buffer full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("number", event.Number))
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for event := range b.events {
		for _, sink := range b.sinks {
			sink.Deliver(context.Background(), event)
		}
	}
}

func (b *Broadcaster) start() {
	go b.run()
}

func (b *Broadcaster) stop() {
	close(b.events)
	<-b.done
}

// LogSink writes each event to the structured log, the always-on sink.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("analytics.log")}
}

func (s *LogSink) Deliver(_ context.Context, event Event) {
	s.log.Info("document event",
		zap.String("kind", string(event.Kind)),
		zap.String("number", event.Number),
		zap.Int64("total", event.Total),
		zap.String("currency", event.Currency),
		zap.String("country", event.CountryCode),
	)
}

var Module = fx.Module("analytics",
	fx.Provide(
		fx.Annotate(NewLogSink, fx.As(new(Sink)), fx.ResultTags(`group:"analytics_sinks"`)),
		fx.Annotate(NewMetricsSink, fx.As(new(Sink)), fx.ResultTags(`group:"analytics_sinks"`)),
		NewBroadcaster,
		func(b *Broadcaster) Publisher { return b },
	),
	fx.Invoke(func(lc fx.Lifecycle, b *Broadcaster) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { b.start(); return nil },
			OnStop:  func(context.Context) error { b.stop(); return nil },
		})
	}),
)
