// Package publish delivers terminal reports to downstream sinks.
//
// Publish enqueues and returns immediately; a single worker fans each report
// out to every sink. Each sink sits behind its own circuit breaker so a failing
// destination is skipped instead of slowing the others.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"propertyvet/internal/screening/metrics"
	"propertyvet/internal/screening/models"
	"propertyvet/pkg/platform/circuit"
	"propertyvet/pkg/platform/sentinel"
)

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Sink

const (
	DefaultBuffer      = 256
	DefaultSinkTimeout = 10 * time.Second
)

var (
	ErrBufferFull = fmt.Errorf("publish buffer full: %w", sentinel.ErrUnavailable)
	ErrClosed     = fmt.Errorf("publisher: %w", sentinel.ErrClosed)
)

// Sink is one downstream destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report models.Report) error
}

type guardedSink struct {
	sink    Sink
	breaker *circuit.Breaker
}

type Publisher struct {
	sinks       []guardedSink
	inbox       chan models.Report
	sinkTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	breakerOpts []circuit.Option

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type Option func(*Publisher)

func WithBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan models.Report, size)
		}
	}
}

func WithSinkTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.sinkTimeout = d
		}
	}
}

// WithBreakerOptions configures the breaker created for every sink.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(p *Publisher) {
		p.breakerOpts = opts
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher starts the delivery worker. Call Close to drain and stop it.
func NewPublisher(sinks []Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sinkTimeout: DefaultSinkTimeout,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox == nil {
		p.inbox = make(chan models.Report, DefaultBuffer)
	}
	for _, s := range sinks {
		p.sinks = append(p.sinks, guardedSink{
			sink:    s,
			breaker: circuit.New("sink:"+s.Name(), p.breakerOpts...),
		})
	}
	go p.run()
	return p
}

// Publish enqueues report without blocking. When the inbox is full the report
// is dropped and ErrBufferFull returned.
func (p *Publisher) Publish(ctx context.Context, report models.Report) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.inbox <- report:
		return nil
	default:
		p.metrics.IncrementPublication("*", "dropped")
		p.logger.WarnContext(ctx, "report dropped, publish buffer full", "request_id", report.RequestID)
		return ErrBufferFull
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for report := range p.inbox {
		p.deliver(report)
	}
}

func (p *Publisher) deliver(report models.Report) {
	for _, gs := range p.sinks {
		name := gs.sink.Name()
		if !gs.breaker.Allow() {
			p.metrics.IncrementPublication(name, "skipped")
			p.logger.Debug("sink circuit open, skipping", "sink", name, "request_id", report.RequestID)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.sinkTimeout)
		err := gs.sink.Publish(ctx, report)
		cancel()

		if err != nil {
			_, change := gs.breaker.RecordFailure()
			p.metrics.IncrementPublication(name, "error")
			p.logger.Warn("sink publish failed", "sink", name, "request_id", report.RequestID, "error", err)
			if change.Opened {
				p.logger.Error("sink circuit opened", "sink", name)
			}
			continue
		}
		_, change := gs.breaker.RecordSuccess()
		p.metrics.IncrementPublication(name, "ok")
		if change.Closed {
			p.logger.Info("sink circuit closed", "sink", name)
		}
	}
}

// Close stops accepting reports and waits for queued ones to be delivered, or
// for ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SinkStates reports the breaker state of every sink.
func (p *Publisher) SinkStates() map[string]circuit.State {
	out := make(map[string]circuit.State, len(p.sinks))
	for _, gs := range p.sinks {
		out[gs.sink.Name()] = gs.breaker.State()
	}
	return out
}
