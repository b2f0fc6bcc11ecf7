package zotero

import (
	"time"

	"github.com/richardjlyon/ayda/pkg/item"
)

// Link modes of attachment items.
const (
	LinkModeImportedFile = "imported_file"
	LinkModeImportedURL  = "imported_url"
	LinkModeLinkedFile   = "linked_file"
	LinkModeLinkedURL    = "linked_url"
)

// itemEntry is one element of an items response.
type itemEntry struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Data    itemData `json:"data"`
}

type itemData struct {
	Key         string `json:"key"`
	ItemType    string `json:"itemType"`
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	ParentItem  string `json:"parentItem"`
	LinkMode    string `json:"linkMode"`
	DateAdded   string `json:"dateAdded"`
}

// storedInLibrary reports whether the attachment's file lives in Zotero's
// storage directory rather than elsewhere on disk or the web.
func storedInLibrary(linkMode string) bool {
	switch linkMode {
	case LinkModeImportedFile, LinkModeImportedURL:
		return true
	default:
		return false
	}
}

func isLinked(linkMode string) bool {
	return linkMode == LinkModeLinkedFile || linkMode == LinkModeLinkedURL
}

func (e itemEntry) toItem() item.Item {
	d := e.Data
	key := d.Key
	if key == "" {
		key = e.Key
	}

	it := item.Item{
		Key:         key,
		Version:     e.Version,
		ItemType:    d.ItemType,
		ContentType: d.ContentType,
		Title:       d.Title,
		Filename:    d.Filename,
		ParentKey:   d.ParentItem,
		LinkMode:    d.LinkMode,
	}
	if t, err := time.Parse(time.RFC3339, d.DateAdded); err == nil {
		it.DateAdded = t
	}
	// Zotero storage layout: <storage>/<attachment key>/<filename>
	if d.Filename != "" && storedInLibrary(d.LinkMode) {
		it.File = key + "/" + d.Filename
	}
	return it
}
