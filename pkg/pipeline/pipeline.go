// Package pipeline moves the eligible items of a source collection into an
// embedding workspace.
//
// A run is a fixed sequence of stages:
//
//	Fetching → Filtering → Uploading → Embedding → Reporting → Done
//
// Fetching, filtering and uploading are pipelined: uploads start while later
// pages are still being fetched. Uploads run on a bounded worker pool and
// fail independently; the successful ones are embedded with a single batch
// call and the failed ones are written to a failure log.
package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/item"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stage is a step of an import run.
type Stage string

// Run stages, in order.
const (
	StageFetching  Stage = "fetching"
	StageFiltering Stage = "filtering"
	StageUploading Stage = "uploading"
	StageEmbedding Stage = "embedding"
	StageReporting Stage = "reporting"
	StageDone      Stage = "done"
)

// Config holds pipeline configuration.
type Config struct {
	MaxConcurrency int
	UploadTimeout  time.Duration
	// LogDir is where failure logs are written.
	LogDir string
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
		LogDir:         ".",
	}
}

// EmbedFailureHook is called after a failed embed, typically to discard
// the half-built workspace.
type EmbedFailureHook func(ctx context.Context, workspace string, err error) error

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFilter sets the eligibility filter. Default accepts PDF attachments.
func WithFilter(f item.Filter) Option {
	return func(p *Pipeline) { p.filter = f }
}

// WithStageObserver registers a callback invoked on every stage transition.
func WithStageObserver(fn func(runID string, stage Stage)) Option {
	return func(p *Pipeline) { p.onStage = fn }
}

// WithEmbedFailureHook registers a hook run when embedding fails.
func WithEmbedFailureHook(hook EmbedFailureHook) Option {
	return func(p *Pipeline) { p.onEmbedFailure = hook }
}

// WithNotifier sets the progress notifier. It is closed when Run returns,
// so a notifier serves a single run.
func WithNotifier(n *Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithLogger sets the logger. Default is the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// Pipeline runs imports.
type Pipeline struct {
	uploader       Uploader
	embedder       Embedder
	config         Config
	filter         item.Filter
	onStage        func(string, Stage)
	onEmbedFailure EmbedFailureHook
	notifier       *Notifier
	logger         zerolog.Logger
}

// New creates a pipeline.
func New(uploader Uploader, embedder Embedder, config Config, opts ...Option) *Pipeline {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.LogDir == "" {
		config.LogDir = "."
	}

	p := &Pipeline{
		uploader: uploader,
		embedder: embedder,
		config:   config,
		filter:   item.ContentTypeFilter(item.ContentTypePDF),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Summary is the outcome of a run.
type Summary struct {
	RunID     string
	Workspace string
	Result    BatchResult
	// Embedded is true when the successful uploads were committed.
	Embedded bool
	EmbedErr error
	// Discarded is true when the embed failure hook ran successfully.
	Discarded bool
	Log       *FailureLog
	LogErr    error
	Stage     Stage
	Started   time.Time
	Duration  time.Duration
}

// Run imports items into workspace.
//
// A *failure.FetchError from items aborts the run: it is returned with a nil
// Summary. Cancellation of ctx stops dispatch; in-flight uploads finish,
// embedding is skipped, failures are still reported, and the Summary is
// returned with ctx's error. A failed embed returns the Summary together
// with its *failure.EmbedError. A failure log that cannot be written is only
// reported in Summary.LogErr.
func (p *Pipeline) Run(ctx context.Context, workspace string, items iter.Seq2[item.Item, error]) (*Summary, error) {
	s := &Summary{
		RunID:     uuid.NewString(),
		Workspace: workspace,
		Started:   time.Now(),
	}
	logger := p.logger.With().Str("run_id", s.RunID).Str("workspace", workspace).Logger()
	defer func() {
		s.Duration = time.Since(s.Started)
		runsTotal.WithLabelValues(string(s.Stage)).Inc()
	}()

	if p.notifier != nil {
		defer p.notifier.Close()
	}

	p.enter(s, StageFetching, logger)
	filtered := p.filter.Apply(p.onFirst(items, func() { p.enter(s, StageFiltering, logger) }))
	eligible := p.onFirst(filtered, func() { p.enter(s, StageUploading, logger) })

	scheduler := NewScheduler(p.uploader, SchedulerConfig{
		MaxConcurrency: p.config.MaxConcurrency,
		UploadTimeout:  p.config.UploadTimeout,
	}, logger)
	result, err := scheduler.Run(ctx, eligible, p.notifier)
	s.Result = result

	if cerr := ctx.Err(); cerr != nil {
		// Cancelled: skip embedding, still report.
		logger.Warn().Err(cerr).Int("completed", result.Total()).Msg("Import cancelled")
		p.report(s, logger)
		return s, cerr
	}
	if err != nil {
		var fe *failure.FetchError
		if !errors.As(err, &fe) {
			fe = failure.Fetch(err, "", -1)
		}
		if n := len(result.Succeeded); n > 0 {
			logger.Warn().
				Int("uploaded", n).
				Msg("Source fetch failed after documents were uploaded; they are not embedded")
		}
		logger.Error().Err(fe).Msg("Import aborted")
		return nil, fe
	}

	if handles := result.Handles(); len(handles) > 0 {
		p.enter(s, StageEmbedding, logger)
		committer := NewCommitter(p.embedder, logger)
		if err := committer.Commit(ctx, workspace, handles); err != nil {
			s.EmbedErr = err
			p.embedFailed(ctx, s, err, logger)
		} else {
			s.Embedded = true
		}
	}

	p.report(s, logger)
	p.enter(s, StageDone, logger)

	logger.Info().
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Bool("embedded", s.Embedded).
		Dur("duration", time.Since(s.Started)).
		Msg("Import finished")

	return s, s.EmbedErr
}

func (p *Pipeline) report(s *Summary, logger zerolog.Logger) {
	p.enter(s, StageReporting, logger)
	reporter := NewReporter(p.config.LogDir, logger)
	s.Log, s.LogErr = reporter.Report(s.Result.Failed)
}

func (p *Pipeline) embedFailed(ctx context.Context, s *Summary, err error, logger zerolog.Logger) {
	if p.onEmbedFailure == nil {
		return
	}
	if herr := p.onEmbedFailure(context.WithoutCancel(ctx), s.Workspace, err); herr != nil {
		logger.Error().Err(herr).Msg("Embed failure hook failed")
		return
	}
	s.Discarded = true
}

func (p *Pipeline) enter(s *Summary, stage Stage, logger zerolog.Logger) {
	s.Stage = stage
	logger.Debug().Str("stage", string(stage)).Msg("Stage")
	if p.onStage != nil {
		p.onStage(s.RunID, stage)
	}
}

// onFirst calls fn once, before the first element of seq is passed on.
func (p *Pipeline) onFirst(seq iter.Seq2[item.Item, error], fn func()) iter.Seq2[item.Item, error] {
	return func(yield func(item.Item, error) bool) {
		var once sync.Once
		for it, err := range seq {
			if err == nil {
				once.Do(fn)
			}
			if !yield(it, err) {
				return
			}
		}
	}
}
