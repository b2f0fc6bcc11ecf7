package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"
)

// LLMWorkspace is a workspace held by MockAnythingLLM.
type LLMWorkspace struct {
	ID        int
	Name      string
	Slug      string
	Documents []string
}

// MockAnythingLLM is a configurable mock of the AnythingLLM developer API.
type MockAnythingLLM struct {
	server *httptest.Server
	APIKey string

	mu          sync.Mutex
	workspaces  map[string]*LLMWorkspace
	nextID      int
	documents   []string
	uploadDelay time.Duration
	failUpload  map[string]int
	embedStatus int

	// Tracking
	Uploads        []string
	EmbedCalls     [][]string
	RemovedDocs    []string
	InFlight       int
	PeakInFlight   int
	RequestHeaders []http.Header
}

// NewMockAnythingLLM creates a mock server accepting apiKey.
func NewMockAnythingLLM(apiKey string) *MockAnythingLLM {
	mock := &MockAnythingLLM{
		APIKey:     apiKey,
		workspaces: make(map[string]*LLMWorkspace),
		nextID:     1,
		failUpload: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/auth", mock.handleAuth)
	mux.HandleFunc("GET /api/v1/workspaces", mock.handleWorkspaces)
	mux.HandleFunc("POST /api/v1/workspace/new", mock.handleNewWorkspace)
	mux.HandleFunc("GET /api/v1/workspace/{slug}", mock.handleWorkspace)
	mux.HandleFunc("DELETE /api/v1/workspace/{slug}", mock.handleDeleteWorkspace)
	mux.HandleFunc("POST /api/v1/workspace/{slug}/update-embeddings", mock.handleUpdateEmbeddings)
	mux.HandleFunc("POST /api/v1/workspace/{slug}/chat", mock.handleChat)
	mux.HandleFunc("DELETE /api/v1/system/remove-documents", mock.handleRemoveDocuments)
	mux.HandleFunc("POST /api/v1/document/upload", mock.handleUpload)
	mux.HandleFunc("GET /api/v1/documents", mock.handleDocuments)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestHeaders = append(mock.RequestHeaders, r.Header.Clone())
		mock.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+mock.APIKey {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":"No valid api key found."}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL (without /api/v1).
func (m *MockAnythingLLM) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAnythingLLM) Close() {
	m.server.Close()
}

// AddWorkspace creates a workspace directly.
func (m *MockAnythingLLM) AddWorkspace(name string, documents ...string) *LLMWorkspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addWorkspaceLocked(name, documents)
}

// SetUploadDelay slows every upload down.
func (m *MockAnythingLLM) SetUploadDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadDelay = d
}

// FailUpload makes uploads whose file name contains substr answer with
// status. Status 200 reproduces AnythingLLM's {"success":false} answer.
func (m *MockAnythingLLM) FailUpload(substr string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpload[substr] = status
}

// FailEmbeddings makes update-embeddings answer with status.
func (m *MockAnythingLLM) FailEmbeddings(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedStatus = status
}

// Workspace returns a copy of the workspace with slug.
func (m *MockAnythingLLM) Workspace(slug string) (LLMWorkspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[slug]
	if !ok {
		return LLMWorkspace{}, false
	}
	out := *ws
	out.Documents = append([]string(nil), ws.Documents...)
	return out, true
}

// Snapshot returns copies of the tracked uploads and embed calls.
func (m *MockAnythingLLM) Snapshot() (uploads []string, embeds [][]string, peak int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uploads = append([]string(nil), m.Uploads...)
	for _, call := range m.EmbedCalls {
		embeds = append(embeds, append([]string(nil), call...))
	}
	return uploads, embeds, m.PeakInFlight
}

func (m *MockAnythingLLM) addWorkspaceLocked(name string, documents []string) *LLMWorkspace {
	slug := slugify(name)
	for _, exists := m.workspaces[slug]; exists; _, exists = m.workspaces[slug] {
		slug = fmt.Sprintf("%s-%d", slugify(name), m.nextID)
	}
	ws := &LLMWorkspace{ID: m.nextID, Name: name, Slug: slug, Documents: documents}
	m.nextID++
	m.workspaces[slug] = ws
	return ws
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func workspaceJSON(ws *LLMWorkspace) map[string]any {
	docs := make([]map[string]any, 0, len(ws.Documents))
	for _, d := range ws.Documents {
		docs = append(docs, map[string]any{"docpath": d})
	}
	return map[string]any{
		"id":            ws.ID,
		"name":          ws.Name,
		"slug":          ws.Slug,
		"createdAt":     "2024-01-01T00:00:00.000Z",
		"lastUpdatedAt": "2024-01-01T00:00:00.000Z",
		"documents":     docs,
	}
}

func (m *MockAnythingLLM) handleAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (m *MockAnythingLLM) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slugs := make([]string, 0, len(m.workspaces))
	for slug := range m.workspaces {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	out := make([]any, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, workspaceJSON(m.workspaces[slug]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": out})
}

func (m *MockAnythingLLM) handleNewWorkspace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"workspace": nil, "message": "name required"})
		return
	}

	m.mu.Lock()
	ws := m.addWorkspaceLocked(body.Name, nil)
	out := workspaceJSON(ws)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"workspace": out, "message": "Workspace created"})
}

func (m *MockAnythingLLM) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[r.PathValue("slug")]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"workspace": []any{}})
		return
	}
	// Newer servers answer with a single-element array.
	writeJSON(w, http.StatusOK, map[string]any{"workspace": []any{workspaceJSON(ws)}})
}

func (m *MockAnythingLLM) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slug := r.PathValue("slug")
	if _, ok := m.workspaces[slug]; !ok {
		// AnythingLLM reports a bad delete as 200 with a plain body.
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "Bad Request")
		return
	}
	delete(m.workspaces, slug)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (m *MockAnythingLLM) handleUpdateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Adds    []string `json:"adds"`
		Deletes []string `json:"deletes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.embedStatus != 0 {
		writeJSON(w, m.embedStatus, map[string]string{"error": "vector database unavailable"})
		return
	}

	ws, ok := m.workspaces[r.PathValue("slug")]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspace not found"})
		return
	}

	if len(body.Adds) > 0 {
		m.EmbedCalls = append(m.EmbedCalls, append([]string(nil), body.Adds...))
		ws.Documents = append(ws.Documents, body.Adds...)
	}
	if len(body.Deletes) > 0 {
		remove := make(map[string]bool, len(body.Deletes))
		for _, d := range body.Deletes {
			remove[d] = true
		}
		kept := ws.Documents[:0]
		for _, d := range ws.Documents {
			if !remove[d] {
				kept = append(kept, d)
			}
		}
		ws.Documents = kept
	}

	writeJSON(w, http.StatusOK, map[string]any{"workspace": workspaceJSON(ws)})
}

func (m *MockAnythingLLM) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
		Mode    string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m.mu.Lock()
	ws, ok := m.workspaces[r.PathValue("slug")]
	var sources []map[string]string
	if ok {
		for _, d := range ws.Documents {
			sources = append(sources, map[string]string{"title": d})
		}
	}
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspace not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           "chat-1",
		"type":         "textResponse",
		"textResponse": fmt.Sprintf("[%s] %s", body.Mode, body.Message),
		"sources":      sources,
		"close":        true,
		"error":        nil,
	})
}

func (m *MockAnythingLLM) handleRemoveDocuments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m.mu.Lock()
	m.RemovedDocs = append(m.RemovedDocs, body.Names...)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Documents removed successfully"})
}

func (m *MockAnythingLLM) handleUpload(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.InFlight++
	m.PeakInFlight = max(m.PeakInFlight, m.InFlight)
	delay := m.uploadDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.InFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error(), "documents": nil})
		return
	}
	defer file.Close()
	_, _ = io.Copy(io.Discard, file)

	m.mu.Lock()
	for substr, status := range m.failUpload {
		if strings.Contains(header.Filename, substr) {
			m.mu.Unlock()
			if status == http.StatusOK {
				writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Document processing failed.", "documents": []any{}})
			} else {
				writeJSON(w, status, map[string]any{"success": false, "error": http.StatusText(status), "documents": nil})
			}
			return
		}
	}
	location := "custom-documents/" + strings.TrimSuffix(header.Filename, ".pdf") + ".json"
	m.Uploads = append(m.Uploads, header.Filename)
	m.documents = append(m.documents, location)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"error":   nil,
		"documents": []map[string]any{{
			"id":        "doc-" + header.Filename,
			"location":  location,
			"title":     header.Filename,
			"name":      header.Filename,
			"docAuthor": "Unknown",
		}},
	})
}

func (m *MockAnythingLLM) handleDocuments(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make([]map[string]any, 0, len(m.documents))
	for _, loc := range m.documents {
		name := strings.TrimPrefix(loc, "custom-documents/")
		files = append(files, map[string]any{
			"id":       "doc-" + name,
			"name":     name,
			"title":    name,
			"type":     "file",
			"cached":   false,
			"location": loc,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"localFiles": map[string]any{
			"name": "documents",
			"type": "folder",
			"items": []map[string]any{{
				"name":  "custom-documents",
				"type":  "folder",
				"items": files,
			}},
		},
	})
}
