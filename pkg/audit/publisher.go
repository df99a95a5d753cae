package audit

import (
	"context"
	"sync"
	"time"
)

// Store persists emitted events. Implementations: the in-memory store below
// and the Kafka sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher fans events out to a store, either synchronously or through a
// buffered channel drained by a background goroutine. Async mode keeps audit
// writes off the request path; Close drains whatever is buffered.
type Publisher struct {
	store Store

	mu     sync.Mutex
	ch     chan Event
	done   chan struct{}
	closed bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer
// size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		p.ch = make(chan Event, size)
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.ch != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an event. In async mode a full buffer falls back to a
// synchronous write rather than dropping the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if p.ch == nil {
		return p.store.Append(ctx, event)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return p.store.Append(ctx, event)
	}
	select {
	case p.ch <- event:
		return nil
	default:
		return p.store.Append(ctx, event)
	}
}

func (p *Publisher) drain() {
	for event := range p.ch {
		// Background writes get their own context; the emitting request may
		// be long gone.
		_ = p.store.Append(context.Background(), event)
	}
	close(p.done)
}

// Close stops the async drainer after flushing buffered events. Safe to call
// on a sync publisher and safe to call twice.
func (p *Publisher) Close() {
	if p.ch == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.ch)
	<-p.done
}
