package anythingllm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/richardjlyon/ayda/pkg/failure"
)

// Document is a file held in the AnythingLLM document store.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Location  string `json:"location"`
	DocAuthor string `json:"docAuthor"`
	Cached    bool   `json:"cached"`
}

type uploadResponse struct {
	Success   bool       `json:"success"`
	Error     *string    `json:"error"`
	Documents []Document `json:"documents"`
}

var multiSpace = regexp.MustCompile(` +`)

// UploadName converts a file name to the form AnythingLLM stores it under:
// runs of spaces collapse, " - " becomes "-", commas are dropped and the
// remaining spaces become "-".
//
//	"Skrable et al. - 2022 - World Atmospheric CO2, Its 14C Specific Activity, .pdf"
//	"Skrable-et-al.-2022-World-Atmospheric-CO2-Its-14C-Specific-Activity-.pdf"
func UploadName(name string) string {
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.ReplaceAll(name, " - ", "-")
	name = strings.ReplaceAll(name, ",", "")
	return strings.ReplaceAll(name, " ", "-")
}

// UploadFile uploads the file at path and returns the stored document.
// Failures are *failure.UploadError.
func (c *Client) UploadFile(ctx context.Context, path string) (Document, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Document{}, &failure.UploadError{Kind: failure.KindNotFound, Message: "file not found: " + path, Err: err}
	case err != nil:
		return Document{}, &failure.UploadError{Kind: failure.KindIO, Message: "stat " + path, Err: err}
	case !info.Mode().IsRegular():
		return Document{}, &failure.UploadError{Kind: failure.KindIO, Message: "not a regular file: " + path}
	case c.maxFileSize > 0 && info.Size() > c.maxFileSize:
		return Document{}, &failure.UploadError{
			Kind:    failure.KindTooLarge,
			Message: fmt.Sprintf("file is %s, limit is %s", mebibytes(info.Size()), mebibytes(c.maxFileSize)),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return Document{}, failure.Upload(err)
	}
	defer f.Close()

	var resp uploadResponse
	if err := c.http.PostMultipart(ctx, "document/upload", "file", UploadName(filepath.Base(path)), f, &resp); err != nil {
		return Document{}, failure.Upload(err)
	}

	if !resp.Success {
		msg := "upload rejected"
		if resp.Error != nil && *resp.Error != "" {
			msg = *resp.Error
		}
		kind := failure.KindStatus
		if strings.Contains(strings.ToLower(msg), "already exists") {
			kind = failure.KindDuplicate
		}
		return Document{}, &failure.UploadError{Kind: kind, Message: msg}
	}
	if len(resp.Documents) == 0 || resp.Documents[0].Location == "" {
		return Document{}, &failure.UploadError{Kind: failure.KindProtocol, Message: "upload response has no document location"}
	}
	return resp.Documents[0], nil
}

func mebibytes(n int64) string {
	return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
}

// RemoveDocuments deletes documents from the document store.
func (c *Client) RemoveDocuments(ctx context.Context, docPaths []string) error {
	body := map[string][]string{"names": docPaths}
	if err := c.http.SendJSON(ctx, http.MethodDelete, "system/remove-documents", body, nil); err != nil {
		return fmt.Errorf("remove %d documents: %w", len(docPaths), err)
	}
	return nil
}

type documentNode struct {
	Document
	Type  string         `json:"type"`
	Items []documentNode `json:"items"`
}

// Documents lists every file in the document store, flattening folders.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	var resp struct {
		LocalFiles documentNode `json:"localFiles"`
	}
	if _, err := c.http.GetJSON(ctx, "documents", nil, &resp); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var out []Document
	var walk func(n documentNode)
	walk = func(n documentNode) {
		if n.Type == "file" {
			out = append(out, n.Document)
		}
		for _, child := range n.Items {
			walk(child)
		}
	}
	walk(resp.LocalFiles)
	return out, nil
}
