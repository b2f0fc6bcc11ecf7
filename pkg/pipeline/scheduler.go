package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/item"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency is the default number of uploads in flight.
const DefaultMaxConcurrency = 100

// SchedulerConfig holds upload scheduler configuration.
type SchedulerConfig struct {
	// MaxConcurrency caps the number of uploads in flight.
	MaxConcurrency int
	// UploadTimeout bounds a single upload (0 = no timeout).
	UploadTimeout time.Duration
}

// Scheduler dispatches uploads on a bounded worker pool.
type Scheduler struct {
	uploader Uploader
	config   SchedulerConfig
	logger   zerolog.Logger
}

// NewScheduler creates an upload scheduler.
func NewScheduler(uploader Uploader, config SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Scheduler{
		uploader: uploader,
		config:   config,
		logger:   logger,
	}
}

// Run consumes items and uploads each one, with at most MaxConcurrency
// uploads in flight. Dispatch starts before items is exhausted.
//
// A failed upload is recorded in the result and never affects other items.
// If items yields an error, or ctx is cancelled, dispatch stops; uploads
// already in flight run to completion and are included in the result, which
// is returned together with the error.
func (s *Scheduler) Run(ctx context.Context, items iter.Seq2[item.Item, error], notifier *Notifier) (BatchResult, error) {
	pool, err := ants.NewPool(s.config.MaxConcurrency)
	if err != nil {
		return BatchResult{}, fmt.Errorf("create upload pool: %w", err)
	}
	defer pool.Release()

	var notify func(Progress)
	if notifier != nil {
		notify = notifier.notify
	}
	agg := newAggregator(s.config.MaxConcurrency, notify)

	// In-flight uploads outlive cancellation of the run.
	taskCtx := context.WithoutCancel(ctx)

	var (
		wg        sync.WaitGroup
		stopErr   error
		submitted int
	)

	// slots admits an item only when a worker is free, so dispatch waits on
	// ctx instead of blocking inside Submit.
	slots := semaphore.NewWeighted(int64(s.config.MaxConcurrency))

	for it, err := range items {
		if err != nil {
			stopErr = err
			break
		}
		if err := slots.Acquire(ctx, 1); err != nil {
			stopErr = err
			break
		}

		wg.Add(1)
		submitted++
		task := it
		if err := pool.Submit(func() {
			defer wg.Done()
			defer slots.Release(1)
			if err := ctx.Err(); err != nil {
				// Admitted but not started before the run was cancelled.
				agg.add(Outcome{Item: task, Err: failure.Upload(err)})
				return
			}
			agg.add(s.upload(taskCtx, task))
		}); err != nil {
			wg.Done()
			slots.Release(1)
			agg.add(Outcome{Item: task, Err: failure.Upload(fmt.Errorf("submit upload: %w", err))})
		}
	}

	if stopErr == nil && ctx.Err() != nil {
		stopErr = ctx.Err()
	}

	if stopErr != nil {
		s.logger.Warn().
			Err(stopErr).
			Int("submitted", submitted).
			Int("in_flight", pool.Running()).
			Msg("Dispatch stopped, waiting for in-flight uploads")
	}

	wg.Wait()
	result := agg.close()

	s.logger.Info().
		Int("submitted", submitted).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Msg("Upload stage complete")

	return result, stopErr
}

// upload runs one upload and converts every failure, including a panic,
// into a Failure outcome.
func (s *Scheduler) upload(ctx context.Context, it item.Item) (o Outcome) {
	o.Item = it
	start := time.Now()
	uploadsInFlight.Inc()

	defer func() {
		uploadsInFlight.Dec()
		if r := recover(); r != nil {
			o.Handle = ""
			o.Err = &failure.UploadError{Kind: failure.KindUnknown, Message: fmt.Sprintf("panic: %v", r)}
		}
		s.observe(o, time.Since(start))
	}()

	if s.config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.UploadTimeout)
		defer cancel()
	}

	handle, err := s.uploader.Upload(ctx, it)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		o.Err = &failure.UploadError{
			Kind:    failure.KindTimeout,
			Message: fmt.Sprintf("upload exceeded %s", s.config.UploadTimeout),
			Err:     err,
		}
	case err != nil:
		o.Err = failure.Upload(err)
	case handle == "":
		o.Err = &failure.UploadError{Kind: failure.KindProtocol, Message: "destination returned an empty handle"}
	default:
		o.Handle = handle
	}
	return o
}

func (s *Scheduler) observe(o Outcome, d time.Duration) {
	uploadDuration.Observe(d.Seconds())
	if o.OK() {
		uploadsTotal.WithLabelValues("success").Inc()
		s.logger.Debug().
			Str("item_key", o.Item.Key).
			Str("handle", o.Handle).
			Dur("duration", d).
			Msg("Upload succeeded")
		return
	}
	uploadsTotal.WithLabelValues(string(o.Err.Kind)).Inc()
	s.logger.Warn().
		Str("item_key", o.Item.Key).
		Str("error_kind", string(o.Err.Kind)).
		Str("error", o.Err.Message).
		Dur("duration", d).
		Msg("Upload failed")
}
