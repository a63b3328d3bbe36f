package publisher

import (
	"context"
	"sync"
	"time"

	audit "trustmesh/pkg/platform/audit"
	"trustmesh/pkg/platform/audit/worker"
)

// Publisher captures structured audit events. In sync mode it appends
// directly; with WithAsyncBuffer events are queued for a background worker
// and Emit never blocks on the store.
type Publisher struct {
	store   audit.Store
	inbox   chan audit.Event
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
	now     func() time.Time
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous delivery with a bounded queue. When
// the queue is full Emit falls back to a synchronous append.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, nil)
		go func() {
			defer close(p.done)
			_ = w.Run(ctx)
		}()
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.inbox == nil || p.closed {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return p.store.Append(ctx, event)
	}
}

func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Close drains queued events and stops the worker. Safe to call twice.
func (p *Publisher) Close() {
	p.closeMu.Lock()
	if p.closed || p.inbox == nil {
		p.closed = true
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.closeMu.Unlock()

	<-p.done
	p.cancel()
}
