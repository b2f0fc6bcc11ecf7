package main

import (
	"context"
	"io"
	"time"

	"github.com/richardjlyon/ayda/internal/app"
	"github.com/richardjlyon/ayda/internal/config"
	"github.com/richardjlyon/ayda/pkg/pipeline"
	"github.com/spf13/cobra"
)

type importFlags struct {
	replace       bool
	discard       bool
	concurrency   int
	uploadTimeout time.Duration
	quiet         bool
}

func newImportCommand(c *cli) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import documents into a new workspace",
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&f.replace, "replace", false, "delete and recreate the workspace if it exists")
	pf.BoolVar(&f.discard, "discard-on-embed-failure", false, "delete the workspace if embedding fails")
	pf.IntVar(&f.concurrency, "concurrency", 0, "maximum concurrent uploads (default import.max_concurrency)")
	pf.DurationVar(&f.uploadTimeout, "upload-timeout", 0, "timeout per upload, 0 for none (default import.upload_timeout)")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "do not print progress")

	cmd.AddCommand(&cobra.Command{
		Use:   "zotero <collection>",
		Short: "Import the PDF attachments of a Zotero collection",
		Long: `Import the PDF attachments of a Zotero collection into the workspace
"zotero-<collection>". The collection name is matched case-insensitively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImport(cmd, f, config.NeedZotero|config.NeedAnythingLLM|config.NeedLibrary,
				func(ctx context.Context, a *app.App, opts app.ImportOptions) (*pipeline.Summary, error) {
					return a.ImportZotero(ctx, args[0], opts)
				})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "folder <dir>",
		Short: "Import the PDFs of a local folder",
		Long:  `Import the PDF files of a local folder into the workspace "folder-<dir>".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImport(cmd, f, config.NeedAnythingLLM,
				func(ctx context.Context, a *app.App, opts app.ImportOptions) (*pipeline.Summary, error) {
					return a.ImportFolder(ctx, args[0], opts)
				})
		},
	})

	return cmd
}

type importFunc func(ctx context.Context, a *app.App, opts app.ImportOptions) (*pipeline.Summary, error)

func (c *cli) runImport(cmd *cobra.Command, f importFlags, need config.Need, do importFunc) error {
	ctx := cmd.Context()
	a, err := c.app(ctx, need)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := app.ImportOptions{
		Replace:               f.replace,
		DiscardOnEmbedFailure: f.discard,
		MaxConcurrency:        f.concurrency,
		UploadTimeout:         f.uploadTimeout,
	}

	progress := make(chan struct{})
	if f.quiet {
		close(progress)
	} else {
		opts.Notifier = pipeline.NewNotifier(256)
		go follow(cmd.ErrOrStderr(), opts.Notifier, progress)
	}

	summary, err := do(ctx, a, opts)
	<-progress
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

func follow(w io.Writer, n *pipeline.Notifier, done chan<- struct{}) {
	defer close(done)
	pipeline.NewProgressTracker(w, 10).Follow(n.C())
}
