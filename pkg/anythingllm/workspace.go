package anythingllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/richardjlyon/ayda/pkg/failure"
)

// Workspace is an AnythingLLM workspace.
type Workspace struct {
	ID            int                 `json:"id"`
	Name          string              `json:"name"`
	Slug          string              `json:"slug"`
	CreatedAt     time.Time           `json:"createdAt"`
	LastUpdatedAt time.Time           `json:"lastUpdatedAt"`
	Documents     []WorkspaceDocument `json:"documents,omitempty"`
}

// WorkspaceDocument is a document embedded in a workspace.
type WorkspaceDocument struct {
	DocPath string `json:"docpath"`
}

// DocPaths returns the document paths embedded in the workspace.
func (w Workspace) DocPaths() []string {
	out := make([]string, 0, len(w.Documents))
	for _, d := range w.Documents {
		if d.DocPath != "" {
			out = append(out, d.DocPath)
		}
	}
	return out
}

// Workspaces lists all workspaces.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var resp struct {
		Workspaces []Workspace `json:"workspaces"`
	}
	if _, err := c.http.GetJSON(ctx, "workspaces", nil, &resp); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return resp.Workspaces, nil
}

// WorkspaceByName returns the single workspace called name.
func (c *Client) WorkspaceByName(ctx context.Context, name string) (Workspace, error) {
	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return Workspace{}, err
	}

	var matches []Workspace
	for _, w := range workspaces {
		if w.Name == name {
			matches = append(matches, w)
		}
	}

	switch len(matches) {
	case 0:
		return Workspace{}, fmt.Errorf("%w: %q", ErrWorkspaceNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return Workspace{}, fmt.Errorf("%w: %d workspaces named %q", ErrMultipleWorkspaces, len(matches), name)
	}
}

// WorkspaceBySlug returns the workspace with slug including its documents.
func (c *Client) WorkspaceBySlug(ctx context.Context, slug string) (Workspace, error) {
	var resp struct {
		Workspace json.RawMessage `json:"workspace"`
	}
	if _, err := c.http.GetJSON(ctx, "workspace/"+url.PathEscape(slug), nil, &resp); err != nil {
		return Workspace{}, fmt.Errorf("get workspace %s: %w", slug, err)
	}

	ws, ok, err := decodeWorkspace(resp.Workspace)
	if err != nil {
		return Workspace{}, fmt.Errorf("decode workspace %s: %w", slug, err)
	}
	if !ok {
		return Workspace{}, fmt.Errorf("%w: slug %q", ErrWorkspaceNotFound, slug)
	}
	return ws, nil
}

// decodeWorkspace accepts a workspace object, a (possibly empty) array of
// workspaces or null. Server versions differ.
func decodeWorkspace(raw json.RawMessage) (Workspace, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Workspace{}, false, nil
	}

	if raw[0] == '[' {
		var list []Workspace
		if err := json.Unmarshal(raw, &list); err != nil {
			return Workspace{}, false, err
		}
		if len(list) == 0 {
			return Workspace{}, false, nil
		}
		return list[0], true, nil
	}

	var ws Workspace
	if err := json.Unmarshal(raw, &ws); err != nil {
		return Workspace{}, false, err
	}
	return ws, ws.Slug != "", nil
}

// CreateWorkspace creates a workspace called name.
func (c *Client) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	var resp struct {
		Workspace *Workspace `json:"workspace"`
		Message   string     `json:"message"`
	}
	body := map[string]string{"name": name}
	if err := c.http.SendJSON(ctx, http.MethodPost, "workspace/new", body, &resp); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %q: %w", name, err)
	}
	if resp.Workspace == nil || resp.Workspace.Slug == "" {
		return Workspace{}, fmt.Errorf("create workspace %q: %w: %s", name, ErrBadRequest, resp.Message)
	}
	return *resp.Workspace, nil
}

// DeleteWorkspace removes the workspace's documents from the document
// store and then deletes the workspace.
func (c *Client) DeleteWorkspace(ctx context.Context, slug string) error {
	ws, err := c.WorkspaceBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if docs := ws.DocPaths(); len(docs) > 0 {
		if err := c.RemoveDocuments(ctx, docs); err != nil {
			return fmt.Errorf("delete workspace %s: %w", slug, err)
		}
	}

	var body []byte
	if err := c.http.SendJSON(ctx, http.MethodDelete, "workspace/"+url.PathEscape(slug), nil, &body); err != nil {
		return fmt.Errorf("delete workspace %s: %w", slug, err)
	}
	// A rejected delete is reported as 200 with a plain "Bad Request" body.
	if strings.TrimSpace(string(body)) == "Bad Request" {
		return fmt.Errorf("delete workspace %s: %w", slug, ErrBadRequest)
	}
	return nil
}

// DeleteAllWorkspaces deletes every workspace and returns the slugs
// deleted before the first error.
func (c *Client) DeleteAllWorkspaces(ctx context.Context) ([]string, error) {
	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(workspaces))
	for _, ws := range workspaces {
		if err := c.DeleteWorkspace(ctx, ws.Slug); err != nil {
			return deleted, err
		}
		deleted = append(deleted, ws.Slug)
	}
	return deleted, nil
}

// UpdateEmbeddings adds and removes documents from a workspace's embeddings.
func (c *Client) UpdateEmbeddings(ctx context.Context, slug string, adds, deletes []string) error {
	body := struct {
		Adds    []string `json:"adds,omitempty"`
		Deletes []string `json:"deletes,omitempty"`
	}{adds, deletes}

	endpoint := "workspace/" + url.PathEscape(slug) + "/update-embeddings"
	if err := c.http.SendJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("update embeddings of %s: %w", slug, err)
	}
	return nil
}

// EmbedBatch embeds handles into the workspace in a single call.
func (c *Client) EmbedBatch(ctx context.Context, slug string, handles []string) error {
	if err := c.UpdateEmbeddings(ctx, slug, handles, nil); err != nil {
		return failure.Embed(err, slug, len(handles))
	}
	return nil
}
