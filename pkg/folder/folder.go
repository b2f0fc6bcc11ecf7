// Package folder serves the files of a local directory as a paginated
// item source.
package folder

import (
	"context"
	"fmt"
	"iter"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/richardjlyon/ayda/pkg/item"
	"github.com/richardjlyon/ayda/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ItemType is the item type of every file served by a Source.
const ItemType = "file"

// Source lists the regular files of Dir in name order. Hidden files and
// subdirectories are skipped.
//
// The endpoint passed to FetchPage is a slash-separated subdirectory of
// Dir; "" and "." mean Dir itself. Item file references are relative to
// Dir, so Dir is also the root to resolve them against.
type Source struct {
	Dir    string
	logger zerolog.Logger
}

// New creates a Source for dir.
func New(dir string) *Source {
	return &Source{
		Dir:    dir,
		logger: log.With().Str("component", "folder").Logger(),
	}
}

// FetchPage implements pagination.PageFetcher. The directory is listed on
// every call; files added or removed between pages surface as a
// pagination protocol error.
func (s *Source) FetchPage(ctx context.Context, endpoint string, offset, limit int) (pagination.Page[item.Item], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[item.Item]{}, err
	}

	items, err := s.list(endpoint)
	if err != nil {
		return pagination.Page[item.Item]{}, err
	}

	total := len(items)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}

	s.logger.Debug().
		Str("dir", s.Dir).
		Str("endpoint", endpoint).
		Int("offset", offset).
		Int("total", total).
		Msg("Listed directory page")

	return pagination.Page[item.Item]{Items: items[start:end], Total: total}, nil
}

func (s *Source) list(endpoint string) ([]item.Item, error) {
	rel := path.Clean("/" + endpoint)[1:]
	dir := filepath.Join(s.Dir, filepath.FromSlash(rel))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	items := make([]item.Item, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}

		ref := path.Join(rel, e.Name())
		items = append(items, item.Item{
			Key:         ref,
			ItemType:    ItemType,
			ContentType: ContentType(e.Name()),
			Title:       strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Filename:    e.Name(),
			File:        ref,
			DateAdded:   info.ModTime().UTC(),
		})
	}
	return items, nil
}

// ContentType returns the media type for name's extension without
// parameters, or "" if the extension is unknown.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext))
	if err != nil {
		return ""
	}
	return mt
}

// Items returns every file of the endpoint subdirectory through a paginator.
func (s *Source) Items(ctx context.Context, endpoint string, cfg pagination.Config) iter.Seq2[item.Item, error] {
	return pagination.New[item.Item](s, cfg).FetchAll(ctx, endpoint)
}
