// Package pipeline streams tag positions from Kafka into the warehouse.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
)

// BatchExtractor fetches up to batchSize messages.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into a validated tag position.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.TagPosition, error)
}

// BatchLoader stores a batch of positions in one warehouse load.
type BatchLoader interface {
	LoadBatch(ctx context.Context, positions []domain.TagPosition) error
}

// DeadLetterer receives messages that failed transformation.
type DeadLetterer interface {
	Publish(ctx context.Context, raw domain.RawEvent, cause error) error
}

// Pipeline moves tag positions from a message source into the warehouse,
// one batch at a time, committing offsets only after a batch is stored.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	deadLetter  DeadLetterer
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithDeadLetter routes rejected messages to d before their offsets are
// committed.
func WithDeadLetter(d DeadLetterer) Option {
	return func(p *Pipeline) { p.deadLetter = d }
}

// New wires the stages. batchSize caps each fetch.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness fails until the first batch of positions reaches the
// warehouse.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any positions yet")
	}
	return nil
}

const (
	minRetryDelay = 200 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// retryDelay is the wait before the next attempt after a failed extract or
// load. It doubles per consecutive failure up to maxRetryDelay.
type retryDelay time.Duration

func (d *retryDelay) reset() { *d = retryDelay(minRetryDelay) }

// wait sleeps for the current delay and doubles it. It returns false when
// ctx ends first.
func (d *retryDelay) wait(ctx context.Context) bool {
	timer := time.NewTimer(time.Duration(*d))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	*d = min(*d*2, retryDelay(maxRetryDelay))
	return true
}

// Run consumes batches until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	delay := retryDelay(minRetryDelay)
	for ctx.Err() == nil && p.step(ctx, &delay) {
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// step handles one fetched batch. It returns false once the pipeline must
// stop.
func (p *Pipeline) step(ctx context.Context, delay *retryDelay) bool {
	start := time.Now()

	msgs, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return delay.wait(ctx)
	}
	if len(msgs) == 0 {
		return true
	}
	p.metrics.MessagesConsumed.Add(float64(len(msgs)))
	p.metrics.BatchSize.Observe(float64(len(msgs)))
	delay.reset()

	positions, accepted := p.transformAll(ctx, msgs)
	if len(positions) == 0 {
		return true
	}
	if err := p.loader.LoadBatch(ctx, positions); err != nil {
		p.logger.Error("load batch failed", "error", err, "positions", len(positions))
		return ctx.Err() == nil && delay.wait(ctx)
	}
	for _, raw := range accepted {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return true
}

// transformAll splits msgs into loadable positions and their source
// messages. Messages that fail to parse are rejected on the spot.
func (p *Pipeline) transformAll(ctx context.Context, msgs []domain.RawEvent) ([]domain.TagPosition, []domain.RawEvent) {
	positions := make([]domain.TagPosition, 0, len(msgs))
	accepted := make([]domain.RawEvent, 0, len(msgs))
	for _, raw := range msgs {
		pos, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("rejecting message", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			p.metrics.TransformErrors.Inc()
			p.reject(ctx, raw, err)
			continue
		}
		positions = append(positions, pos)
		accepted = append(accepted, raw)
	}
	return positions, accepted
}

// reject dead-letters raw when a topic is configured, then commits it. The
// offset stays uncommitted when publishing fails.
func (p *Pipeline) reject(ctx context.Context, raw domain.RawEvent, cause error) {
	if p.deadLetter != nil {
		if err := p.deadLetter.Publish(ctx, raw, cause); err != nil {
			p.logger.Error("dead-letter publish failed", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			return
		}
		p.metrics.DeadLettered.Inc()
	}
	p.commit(ctx, raw)
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
