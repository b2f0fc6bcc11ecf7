package app

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/richardjlyon/ayda/pkg/folder"
	"github.com/richardjlyon/ayda/pkg/item"
	"github.com/richardjlyon/ayda/pkg/pagination"
	"github.com/richardjlyon/ayda/pkg/pipeline"
	"github.com/richardjlyon/ayda/pkg/zotero"
)

// Workspace name prefixes per source.
const (
	ZoteroWorkspacePrefix = "zotero-"
	FolderWorkspacePrefix = "folder-"
)

// ImportOptions tunes a single import. Zero values fall back to the
// configuration.
type ImportOptions struct {
	// Replace deletes and recreates an existing workspace.
	Replace bool

	// DiscardOnEmbedFailure deletes the new workspace when embedding fails.
	DiscardOnEmbedFailure bool

	MaxConcurrency int
	UploadTimeout  time.Duration

	// Notifier receives upload progress. Optional.
	Notifier *pipeline.Notifier
}

// closeNotifier ends progress reporting when an import fails before the
// pipeline runs.
func (o ImportOptions) closeNotifier() {
	if o.Notifier != nil {
		o.Notifier.Close()
	}
}

// ImportZotero imports the PDF attachments of the Zotero collection called
// collection into the workspace "zotero-<collection>".
func (a *App) ImportZotero(ctx context.Context, collection string, opts ImportOptions) (*pipeline.Summary, error) {
	defer opts.closeNotifier()
	if a.zotero == nil {
		return nil, ErrZoteroNotConfigured
	}

	coll, err := a.zotero.CollectionByName(ctx, collection)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("collection", coll.Name).Str("key", coll.Key).Msg("Importing Zotero collection")

	items := a.zotero.Items(ctx, zotero.ItemsEndpoint(coll.Key))
	return a.runImport(ctx, ZoteroWorkspacePrefix+coll.Name, a.cfg.Zotero.LibraryRoot, items, opts)
}

// ImportFolder imports the files of dir into the workspace
// "folder-<base name of dir>".
func (a *App) ImportFolder(ctx context.Context, dir string, opts ImportOptions) (*pipeline.Summary, error) {
	defer opts.closeNotifier()
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("import folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import folder: %s is not a directory", abs)
	}
	a.logger.Info().Str("dir", abs).Msg("Importing folder")

	src := folder.New(abs)
	items := src.Items(ctx, "", pagination.Config{
		PageSize:       a.cfg.Zotero.PageSize,
		MaxConcurrency: 1,
	})
	return a.runImport(ctx, FolderWorkspacePrefix+filepath.Base(abs), abs, items, opts)
}

func (a *App) runImport(ctx context.Context, name, root string, items iter.Seq2[item.Item, error], opts ImportOptions) (*pipeline.Summary, error) {
	ws, err := a.prepareWorkspace(ctx, name, opts.Replace)
	if err != nil {
		return nil, err
	}

	pc := pipeline.Config{
		MaxConcurrency: a.cfg.Import.MaxConcurrency,
		UploadTimeout:  a.cfg.Import.UploadTimeout,
		LogDir:         a.cfg.Import.LogDir,
	}
	if opts.MaxConcurrency > 0 {
		pc.MaxConcurrency = opts.MaxConcurrency
	}
	if opts.UploadTimeout > 0 {
		pc.UploadTimeout = opts.UploadTimeout
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithFilter(item.ContentTypeFilter(a.cfg.Import.ContentType)),
		pipeline.WithLogger(a.logger),
	}
	if opts.Notifier != nil {
		pipeOpts = append(pipeOpts, pipeline.WithNotifier(opts.Notifier))
	}
	if opts.DiscardOnEmbedFailure {
		pipeOpts = append(pipeOpts, pipeline.WithEmbedFailureHook(func(ctx context.Context, slug string, _ error) error {
			return a.llm.DeleteWorkspace(ctx, slug)
		}))
	}

	uploader := &ItemUploader{Root: root, Files: a.llm}
	p := pipeline.New(uploader, a.llm, pc, pipeOpts...)
	return p.Run(ctx, ws.Slug, items)
}
