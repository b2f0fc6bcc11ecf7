// Package item defines the remote library item handled by the import
// pipeline and the eligibility filters applied to it.
package item

import (
	"iter"
	"path/filepath"
	"time"
)

// ContentTypePDF is the content type of PDF attachments.
const ContentTypePDF = "application/pdf"

// Item is a single entry of a source collection.
//
// File is a slash-separated reference relative to the library root the
// caller supplies at upload time. An empty File means the item has no
// attached file.
type Item struct {
	Key         string
	Version     int
	ItemType    string
	ContentType string
	Title       string
	Filename    string
	File        string
	ParentKey   string
	LinkMode    string
	DateAdded   time.Time
}

// HasFile reports whether the item references a file.
func (i Item) HasFile() bool {
	return i.File != ""
}

// Path resolves the file reference against root. It returns false when the
// item has no file or the reference escapes root.
func (i Item) Path(root string) (string, bool) {
	if !i.HasFile() {
		return "", false
	}
	rel := filepath.FromSlash(i.File)
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(root, rel), true
}

// Name returns a human-readable label for logs and reports.
func (i Item) Name() string {
	switch {
	case i.Title != "":
		return i.Title
	case i.Filename != "":
		return i.Filename
	default:
		return i.Key
	}
}

// Filter decides whether an item is eligible for upload.
// Filters must be pure and must not panic on missing fields.
type Filter func(Item) bool

// ContentTypeFilter accepts items that have a file reference and whose
// content type equals kind.
func ContentTypeFilter(kind string) Filter {
	return func(i Item) bool {
		return i.HasFile() && i.ContentType != "" && i.ContentType == kind
	}
}

// All combines filters; an item is eligible only if every filter accepts it.
func All(filters ...Filter) Filter {
	return func(i Item) bool {
		for _, f := range filters {
			if f != nil && !f(i) {
				return false
			}
		}
		return true
	}
}

// Apply lazily filters seq. Errors pass through unchanged.
func (f Filter) Apply(seq iter.Seq2[Item, error]) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for it, err := range seq {
			if err != nil {
				yield(it, err)
				return
			}
			if f != nil && !f(it) {
				continue
			}
			if !yield(it, nil) {
				return
			}
		}
	}
}
