package pipeline

import (
	"context"
	"time"

	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/rs/zerolog"
)

// Committer embeds uploaded documents into a workspace as one batch.
type Committer struct {
	embedder Embedder
	logger   zerolog.Logger
}

// NewCommitter creates a committer.
func NewCommitter(embedder Embedder, logger zerolog.Logger) *Committer {
	return &Committer{embedder: embedder, logger: logger}
}

// Commit issues exactly one EmbedBatch call with all handles. With no
// handles it does nothing. A failure is returned as *failure.EmbedError and
// is not retried; the uploaded documents stay on the destination.
func (c *Committer) Commit(ctx context.Context, workspace string, handles []string) error {
	if len(handles) == 0 {
		c.logger.Info().Str("workspace", workspace).Msg("No documents to embed")
		return nil
	}

	start := time.Now()
	err := c.embedder.EmbedBatch(ctx, workspace, handles)
	if err != nil {
		embedBatches.WithLabelValues("error").Inc()
		ee := failure.Embed(err, workspace, len(handles))
		c.logger.Error().
			Err(err).
			Str("workspace", workspace).
			Int("documents", len(handles)).
			Str("error_kind", string(ee.Kind)).
			Msg("Embedding failed")
		return ee
	}

	embedBatches.WithLabelValues("success").Inc()
	c.logger.Info().
		Str("workspace", workspace).
		Int("documents", len(handles)).
		Dur("duration", time.Since(start)).
		Msg("Documents embedded")
	return nil
}
