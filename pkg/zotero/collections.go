package zotero

import (
	"context"
	"fmt"
	"strings"

	"github.com/richardjlyon/ayda/pkg/pagination"
)

// Collection is a Zotero collection.
type Collection struct {
	Key       string
	Name      string
	ParentKey string
	Version   int
}

type collectionEntry struct {
	Key     string `json:"key"`
	Version int    `json:"version"`
	Data    struct {
		Key  string `json:"key"`
		Name string `json:"name"`
		// false for top-level collections, the parent key otherwise
		ParentCollection any `json:"parentCollection"`
	} `json:"data"`
}

func (e collectionEntry) toCollection() Collection {
	c := Collection{Key: e.Data.Key, Name: e.Data.Name, Version: e.Version}
	if c.Key == "" {
		c.Key = e.Key
	}
	if parent, ok := e.Data.ParentCollection.(string); ok {
		c.ParentKey = parent
	}
	return c
}

func (c *Client) fetchCollections(ctx context.Context, endpoint string, offset, limit int) (pagination.Page[Collection], error) {
	var entries []collectionEntry
	total, err := c.getPage(ctx, endpoint, offset, limit, &entries)
	if err != nil {
		return pagination.Page[Collection]{}, err
	}

	out := make([]Collection, len(entries))
	for i, e := range entries {
		out[i] = e.toCollection()
	}
	return pagination.Page[Collection]{Items: out, Total: total}, nil
}

// Collections returns every collection in the library.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	p := pagination.New[Collection](pagination.FetcherFunc[Collection](c.fetchCollections), c.pagination)
	return pagination.Collect(p.FetchAll(ctx, "collections"))
}

// CollectionByName returns the single collection whose name matches name,
// ignoring case.
func (c *Client) CollectionByName(ctx context.Context, name string) (Collection, error) {
	collections, err := c.Collections(ctx)
	if err != nil {
		return Collection{}, err
	}

	var matches []Collection
	for _, col := range collections {
		if strings.EqualFold(col.Name, name) {
			matches = append(matches, col)
		}
	}

	switch len(matches) {
	case 0:
		return Collection{}, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return Collection{}, fmt.Errorf("%w: %d collections named %q", ErrMultipleCollections, len(matches), name)
	}
}
