package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Deliver(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestBroadcasterDeliversToAllSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	bc := NewBroadcaster(Params{Log: zap.NewNop(), Sinks: []Sink{a, b}})
	bc.start()

	bc.Publish(Event{Kind: EventInvoiceFinalized, Number: "2026.1", Total: 1210})
	bc.Publish(Event{Kind: EventCreditNoteCreated, Number: "2026.2", Total: -1210})
	bc.stop()

	for _, sink := range []*captureSink{a, b} {
		events := sink.snapshot()
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Number != "2026.1" || events[1].Number != "2026.2" {
			t.Fatalf("events out of order: %+v", events)
		}
	}
}

func TestPublishNeverBlocksWhenBufferFull(t *testing.T) {
	// No consumer running; the buffer fills and further publishes drop.
	bc := NewBroadcaster(Params{Log: zap.NewNop()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bc.Publish(Event{Kind: EventInvoiceFinalized})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
}
