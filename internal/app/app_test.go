package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/richardjlyon/ayda/internal/config"
	"github.com/richardjlyon/ayda/internal/testutil"
	"github.com/richardjlyon/ayda/pkg/anythingllm"
	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/item"
	"github.com/richardjlyon/ayda/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	zotero  *testutil.MockZotero
	llm     *testutil.MockAnythingLLM
	cfg     *config.Config
	library string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	z := testutil.NewMockZotero("123", "zkey")
	l := testutil.NewMockAnythingLLM("akey")
	t.Cleanup(z.Close)
	t.Cleanup(l.Close)

	e := &env{zotero: z, llm: l, library: t.TempDir()}
	e.cfg = &config.Config{
		Zotero: config.ZoteroConfig{
			UserID:             "123",
			APIKey:             "zkey",
			LibraryRoot:        e.library,
			BaseURL:            z.URL(),
			PageSize:           2,
			RequestsPerSecond:  1000,
			MaxPageConcurrency: 1,
		},
		AnythingLLM: config.AnythingLLMConfig{
			BaseURL:     l.URL(),
			APIKey:      "akey",
			Timeout:     5 * time.Second,
			MaxFileSize: 1 << 20,
		},
		Import: config.ImportConfig{
			MaxConcurrency: 4,
			ContentType:    item.ContentTypePDF,
			LogDir:         t.TempDir(),
		},
		Cache: config.CacheConfig{TTL: time.Minute, Size: 64},
	}
	return e
}

func (e *env) app(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), e.cfg, config.NeedZotero|config.NeedAnythingLLM|config.NeedLibrary)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// stored adds PDF attachments to the collection and writes their files
// into the library.
func (e *env) stored(t *testing.T, n int) []testutil.ZoteroItem {
	t.Helper()
	out := make([]testutil.ZoteroItem, n)
	for i := range out {
		it := testutil.PDFAttachment(fmt.Sprintf("ITEM%04d", i), fmt.Sprintf("Paper %d", i))
		dir := filepath.Join(e.library, it.Key)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, it.Filename), []byte("%PDF-1.7"), 0o644))
		out[i] = it
	}
	return out
}

func TestNewValidates(t *testing.T) {
	_, err := New(context.Background(), &config.Config{}, config.NeedAnythingLLM)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestNewRedisUnavailable(t *testing.T) {
	e := newEnv(t)
	e.cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), e.cfg, config.NeedAnythingLLM)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestNewWithoutZotero(t *testing.T) {
	e := newEnv(t)
	a, err := New(context.Background(), e.cfg, config.NeedAnythingLLM)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Zotero())
	_, err = a.Collections(context.Background())
	assert.ErrorIs(t, err, ErrZoteroNotConfigured)
	_, err = a.ImportZotero(context.Background(), "Climate", ImportOptions{})
	assert.ErrorIs(t, err, ErrZoteroNotConfigured)
}

func TestImportZotero(t *testing.T) {
	e := newEnv(t)
	items := e.stored(t, 3)
	missing := testutil.PDFAttachment("GONE0001", "Missing paper")
	note := testutil.ZoteroItem{Key: "NOTE0001", ItemType: "note", Title: "A note"}
	e.zotero.AddCollection(testutil.ZoteroCollection{Key: "COLL1", Name: "Climate"}, append(items, missing, note)...)

	a := e.app(t)
	n := pipeline.NewNotifier(16)
	sum, err := a.ImportZotero(context.Background(), "climate", ImportOptions{Notifier: n})
	require.NoError(t, err)

	assert.Equal(t, pipeline.StageDone, sum.Stage)
	assert.True(t, sum.Embedded)
	assert.Len(t, sum.Result.Succeeded, 3)
	require.Len(t, sum.Result.Failed, 1)
	assert.Equal(t, "GONE0001", sum.Result.Failed[0].Item.Key)
	assert.Equal(t, failure.KindNotFound, sum.Result.Failed[0].Err.Kind)

	ws, ok := e.llm.Workspace("zotero-climate")
	require.True(t, ok)
	assert.Equal(t, "zotero-Climate", ws.Name)
	assert.ElementsMatch(t, []string{
		"custom-documents/Paper-0.json",
		"custom-documents/Paper-1.json",
		"custom-documents/Paper-2.json",
	}, ws.Documents)

	_, embeds, peak := e.llm.Snapshot()
	assert.Len(t, embeds, 1, "one embed call per run")
	assert.LessOrEqual(t, peak, 4)

	require.NotNil(t, sum.Log)
	data, err := os.ReadFile(sum.Log.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "GONE0001\tMissing paper\tnot_found"))

	var last pipeline.Progress
	for p := range n.C() {
		last = p
	}
	assert.Equal(t, 4, last.Completed)
}

func TestImportZoteroExistingWorkspace(t *testing.T) {
	e := newEnv(t)
	e.zotero.AddCollection(testutil.ZoteroCollection{Key: "COLL1", Name: "Climate"}, e.stored(t, 1)...)
	e.llm.AddWorkspace("zotero-Climate", "custom-documents/old.json")
	a := e.app(t)

	_, err := a.ImportZotero(context.Background(), "Climate", ImportOptions{})
	assert.ErrorIs(t, err, ErrWorkspaceExists)

	sum, err := a.ImportZotero(context.Background(), "Climate", ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.True(t, sum.Embedded)

	ws, ok := e.llm.Workspace(sum.Workspace)
	require.True(t, ok)
	assert.Equal(t, []string{"custom-documents/Paper-0.json"}, ws.Documents)
	assert.Contains(t, e.llm.RemovedDocs, "custom-documents/old.json")
}

func TestImportZoteroUnknownCollection(t *testing.T) {
	e := newEnv(t)
	a := e.app(t)
	n := pipeline.NewNotifier(1)

	_, err := a.ImportZotero(context.Background(), "Nope", ImportOptions{Notifier: n})
	require.Error(t, err)

	select {
	case _, open := <-n.C():
		assert.False(t, open, "notifier is closed when the import fails early")
	case <-time.After(time.Second):
		t.Fatal("notifier left open")
	}
}

func TestImportZoteroEmbedFailureDiscards(t *testing.T) {
	e := newEnv(t)
	e.zotero.AddCollection(testutil.ZoteroCollection{Key: "COLL1", Name: "Climate"}, e.stored(t, 2)...)
	e.llm.FailEmbeddings(http.StatusInternalServerError)
	a := e.app(t)

	sum, err := a.ImportZotero(context.Background(), "Climate", ImportOptions{DiscardOnEmbedFailure: true})
	var ee *failure.EmbedError
	require.ErrorAs(t, err, &ee)
	require.NotNil(t, sum)
	assert.False(t, sum.Embedded)
	assert.True(t, sum.Discarded)

	_, ok := e.llm.Workspace("zotero-climate")
	assert.False(t, ok, "workspace is discarded")
}

func TestImportZoteroFetchError(t *testing.T) {
	e := newEnv(t)
	e.zotero.AddCollection(testutil.ZoteroCollection{Key: "COLL1", Name: "Climate"}, e.stored(t, 5)...)
	e.zotero.FailPageAt(2, http.StatusBadRequest)
	a := e.app(t)

	sum, err := a.ImportZotero(context.Background(), "Climate", ImportOptions{})
	assert.Nil(t, sum)
	var fe *failure.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Offset)

	_, embeds, _ := e.llm.Snapshot()
	assert.Empty(t, embeds, "nothing is embedded after a fetch error")
}

func TestImportFolder(t *testing.T) {
	e := newEnv(t)
	dir := filepath.Join(t.TempDir(), "papers")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "notes.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	a := e.app(t)

	sum, err := a.ImportFolder(context.Background(), dir, ImportOptions{MaxConcurrency: 1})
	require.NoError(t, err)
	assert.Len(t, sum.Result.Succeeded, 3, "only PDFs are eligible")
	assert.Empty(t, sum.Result.Failed)
	assert.Nil(t, sum.Log)

	ws, ok := e.llm.Workspace("folder-papers")
	require.True(t, ok)
	assert.Len(t, ws.Documents, 3)

	_, _, peak := e.llm.Snapshot()
	assert.Equal(t, 1, peak)
}

func TestImportFolderNotADirectory(t *testing.T) {
	e := newEnv(t)
	a := e.app(t)

	_, err := a.ImportFolder(context.Background(), filepath.Join(t.TempDir(), "missing"), ImportOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "f.pdf")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = a.ImportFolder(context.Background(), file, ImportOptions{})
	assert.Error(t, err)

	workspaces, err := a.Workspaces(context.Background())
	require.NoError(t, err)
	assert.Empty(t, workspaces, "no workspace is created for a bad directory")
}

func TestWorkspaceAdmin(t *testing.T) {
	e := newEnv(t)
	a := e.app(t)
	ctx := context.Background()

	ws, err := a.CreateWorkspace(ctx, "Reading list")
	require.NoError(t, err)
	assert.Equal(t, "reading-list", ws.Slug)

	resp, err := a.Chat(ctx, "Reading list", "hello", anythingllm.ChatModeChat)
	require.NoError(t, err)
	assert.Equal(t, "[chat] hello", resp.TextResponse)

	require.NoError(t, a.DeleteWorkspace(ctx, "Reading list"))
	err = a.DeleteWorkspace(ctx, "Reading list")
	assert.ErrorIs(t, err, anythingllm.ErrWorkspaceNotFound)

	e.llm.AddWorkspace("one")
	e.llm.AddWorkspace("two")
	deleted, err := a.DeleteAllWorkspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, deleted)
}

type fakeFiles struct {
	paths []string
	err   error
}

func (f *fakeFiles) UploadFile(ctx context.Context, path string) (anythingllm.Document, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return anythingllm.Document{}, f.err
	}
	return anythingllm.Document{Location: "custom-documents/" + filepath.Base(path) + ".json"}, nil
}

func TestItemUploader(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		item    item.Item
		err     error
		handle  string
		kind    failure.Kind
		uploads int
	}{
		{"uploads resolved path", item.Item{Key: "K", File: "K/a.pdf"}, nil, "custom-documents/a.pdf.json", "", 1},
		{"no file", item.Item{Key: "K"}, nil, "", failure.KindNotFound, 0},
		{"escapes root", item.Item{Key: "K", File: "../etc/passwd"}, nil, "", failure.KindIO, 0},
		{"upload error kept", item.Item{Key: "K", File: "K/a.pdf"}, &failure.UploadError{Kind: failure.KindDuplicate, Message: "exists"}, "", failure.KindDuplicate, 1},
		{"plain error classified", item.Item{Key: "K", File: "K/a.pdf"}, context.DeadlineExceeded, "", failure.KindTimeout, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := &fakeFiles{err: tt.err}
			u := &ItemUploader{Root: root, Files: files}

			handle, err := u.Upload(context.Background(), tt.item)
			assert.Equal(t, tt.handle, handle)
			assert.Len(t, files.paths, tt.uploads)
			if tt.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, filepath.Join(root, "K", "a.pdf"), files.paths[0])
				return
			}
			var ue *failure.UploadError
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.Equal(t, tt.kind, ue.Kind)
		})
	}
}
