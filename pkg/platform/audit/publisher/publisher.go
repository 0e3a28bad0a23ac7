// Package publisher emits audit events to an audit.Store.
//
// Compliance events are always written synchronously and fail closed: if the
// store rejects them the caller receives the error. Other categories go
// through an optional bounded buffer and are dropped when it is full.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "propertyvet/pkg/platform/audit"

	"github.com/google/uuid"
)

// ErrBufferFull is returned when an async event could not be enqueued.
var ErrBufferFull = errors.New("audit buffer full")

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer chan audit.Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous delivery for non-compliance events.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets a logger for dropped and failed events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an event. ID, Timestamp and Category are filled in when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.buffer == nil || p.closed || event.Category == audit.CategoryCompliance {
		if err := p.store.Append(ctx, event); err != nil {
			if event.Category == audit.CategoryCompliance {
				p.logger.ErrorContext(ctx, "CRITICAL: compliance audit event not persisted",
					"action", event.Action,
					"check_id", event.CheckID,
					"error", err,
				)
			}
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.buffer <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit event dropped", "action", event.Action, "check_id", event.CheckID)
		return ErrBufferFull
	}
}

// List returns the audit trail for a check.
func (p *Publisher) List(ctx context.Context, checkID string) ([]audit.Event, error) {
	return p.store.ListByCheck(ctx, checkID)
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("async audit append failed", "action", event.Action, "error", err)
		}
	}
}

// Close stops accepting async events and drains the buffer. Emit keeps
// working synchronously afterwards.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
