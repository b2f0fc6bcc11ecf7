// Package testutil provides httptest doubles of the Zotero and AnythingLLM
// APIs and a Redis container helper.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ZoteroCollection is a collection served by MockZotero.
type ZoteroCollection struct {
	Key  string
	Name string
}

// ZoteroItem is an item served by MockZotero.
type ZoteroItem struct {
	Key         string
	ItemType    string
	Title       string
	Filename    string
	ContentType string
	ParentItem  string
	LinkMode    string
	DateAdded   time.Time
}

// MockZotero is a configurable mock of the Zotero Web API v3 for one user.
type MockZotero struct {
	server *httptest.Server
	UserID string
	APIKey string

	mu          sync.RWMutex
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)
	collections []ZoteroCollection
	items       map[string][]ZoteroItem
	version     int
	failAt      map[int]int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	NotModifiedCount  int
	LastRequestHeader http.Header
}

// NewMockZotero creates a mock server for userID accepting apiKey.
func NewMockZotero(userID, apiKey string) *MockZotero {
	mock := &MockZotero{
		UserID:   userID,
		APIKey:   apiKey,
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		items:    make(map[string][]ZoteroItem),
		version:  1,
		failAt:   make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-Modified-Since-Version") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL (the Zotero API root).
func (m *MockZotero) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockZotero) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockZotero) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// AddCollection adds a collection with its items and bumps the library version.
func (m *MockZotero) AddCollection(c ZoteroCollection, items ...ZoteroItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = append(m.collections, c)
	m.items[c.Key] = append(m.items[c.Key], items...)
	m.version++
}

// FailPageAt makes the page starting at offset answer with status.
func (m *MockZotero) FailPageAt(offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt[offset] = status
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockZotero) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockZotero) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetNotModifiedCount returns the number of 304 responses sent.
func (m *MockZotero) GetNotModifiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.NotModifiedCount
}

// CollectionsPath returns the path of the collections endpoint.
func (m *MockZotero) CollectionsPath() string {
	return "/users/" + m.UserID + "/collections"
}

// ItemsPath returns the path of a collection's items endpoint.
func (m *MockZotero) ItemsPath(collectionKey string) string {
	return m.CollectionsPath() + "/" + collectionKey + "/items"
}

func (m *MockZotero) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Zotero-API-Key") != m.APIKey {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if r.Header.Get("Zotero-API-Version") != "3" {
		http.Error(w, "Unsupported API version", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	version := m.version
	if since := r.Header.Get("If-Modified-Since-Version"); since == strconv.Itoa(version) {
		m.NotModifiedCount++
		m.mu.Unlock()
		w.Header().Set("Last-Modified-Version", strconv.Itoa(version))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	m.mu.Unlock()

	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 25
	}

	m.mu.RLock()
	status, fail := m.failAt[start]
	m.mu.RUnlock()
	if fail {
		http.Error(w, http.StatusText(status), status)
		return
	}

	var (
		entries []any
		found   bool
	)
	switch {
	case r.URL.Path == m.CollectionsPath():
		entries, found = m.collectionEntries(), true
	case strings.HasPrefix(r.URL.Path, m.CollectionsPath()+"/") && strings.HasSuffix(r.URL.Path, "/items"):
		key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, m.CollectionsPath()+"/"), "/items")
		entries, found = m.itemEntries(key)
	}
	if !found {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	total := len(entries)
	end := min(start+limit, total)
	if start > total {
		start = total
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Total-Results", strconv.Itoa(total))
	w.Header().Set("Last-Modified-Version", strconv.Itoa(version))
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entries[start:end])
}

func (m *MockZotero) collectionEntries() []any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]any, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, map[string]any{
			"key":     c.Key,
			"version": m.version,
			"data": map[string]any{
				"key":              c.Key,
				"name":             c.Name,
				"parentCollection": false,
			},
		})
	}
	return out
}

func (m *MockZotero) itemEntries(collectionKey string) ([]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items, ok := m.items[collectionKey]
	if !ok {
		return nil, false
	}

	out := make([]any, 0, len(items))
	for _, it := range items {
		data := map[string]any{
			"key":      it.Key,
			"itemType": it.ItemType,
			"title":    it.Title,
		}
		if it.Filename != "" {
			data["filename"] = it.Filename
		}
		if it.ContentType != "" {
			data["contentType"] = it.ContentType
		}
		if it.ParentItem != "" {
			data["parentItem"] = it.ParentItem
		}
		if it.LinkMode != "" {
			data["linkMode"] = it.LinkMode
		}
		if !it.DateAdded.IsZero() {
			data["dateAdded"] = it.DateAdded.UTC().Format(time.RFC3339)
		}
		out = append(out, map[string]any{"key": it.Key, "version": m.version, "data": data})
	}
	return out, true
}

// PDFAttachment returns a stored PDF attachment item.
func PDFAttachment(key, title string) ZoteroItem {
	return ZoteroItem{
		Key:         key,
		ItemType:    "attachment",
		Title:       title,
		Filename:    fmt.Sprintf("%s.pdf", title),
		ContentType: "application/pdf",
		LinkMode:    "imported_file",
		DateAdded:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}
