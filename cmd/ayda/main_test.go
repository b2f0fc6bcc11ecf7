package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/richardjlyon/ayda/internal/config"
	"github.com/richardjlyon/ayda/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the user's real config out of the test and returns a
// scratch directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("AYDA_IMPORT_LOG_DIR", filepath.Join(home, "logs"))
	color.NoColor = true
	return home
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), append(args, "--pretty=false", "--log-level=error"), &out, &errOut)
	return code, out.String(), errOut.String()
}

func withAnythingLLM(t *testing.T) *testutil.MockAnythingLLM {
	t.Helper()
	mock := testutil.NewMockAnythingLLM("akey")
	t.Cleanup(mock.Close)
	t.Setenv("AYDA_ANYTHINGLLM_API_KEY", "akey")
	t.Setenv("AYDA_ANYTHINGLLM_BASE_URL", mock.URL())
	return mock
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand(&cli{v: config.New()})
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"import", "workspace", "documents", "zotero", "config"} {
		assert.Contains(t, names, want)
	}

	imp, _, err := root.Find([]string{"import", "zotero"})
	require.NoError(t, err)
	assert.Equal(t, "zotero", imp.Name())
	for _, flag := range []string{"replace", "concurrency", "upload-timeout", "discard-on-embed-failure"} {
		assert.NotNil(t, imp.InheritedFlags().Lookup(flag), flag)
	}
}

func TestConfigInitAndPath(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom", "ayda.yaml")

	code, out, _ := execute(t, "config", "path", "--config", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, path+"\n", out)

	code, out, _ = execute(t, "config", "init", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Wrote "+path)
	_, err := os.Stat(path)
	require.NoError(t, err)

	code, _, errOut := execute(t, "config", "init", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")
}

func TestMissingCredentials(t *testing.T) {
	isolate(t)
	code, _, errOut := execute(t, "workspace", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "AYDA_ANYTHINGLLM_API_KEY")
}

func TestMissingExplicitConfig(t *testing.T) {
	home := isolate(t)
	code, _, errOut := execute(t, "workspace", "list", "--config", filepath.Join(home, "nope.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "read config")
}

func TestWorkspaceCommands(t *testing.T) {
	isolate(t)
	mock := withAnythingLLM(t)

	code, out, _ := execute(t, "workspace", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No workspaces")

	code, out, _ = execute(t, "workspace", "create", "Reading list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Created Reading list (reading-list)")

	code, out, _ = execute(t, "ws", "chat", "Reading list", "what", "is", "new?", "--mode", "chat")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "[chat] what is new?")

	code, _, errOut := execute(t, "workspace", "chat", "Reading list", "hi", "--mode", "yell")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown chat mode")

	code, _, errOut = execute(t, "workspace", "delete")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "requires a workspace name or --all")

	code, _, _ = execute(t, "workspace", "delete", "Reading list")
	require.Equal(t, 0, code)
	_, ok := mock.Workspace("reading-list")
	assert.False(t, ok)

	mock.AddWorkspace("a")
	mock.AddWorkspace("b")
	code, out, _ = execute(t, "workspace", "delete", "--all")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Deleted a")
	assert.Contains(t, out, "Deleted b")
}

func TestImportFolderCommand(t *testing.T) {
	isolate(t)
	mock := withAnythingLLM(t)

	dir := filepath.Join(t.TempDir(), "papers")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"one.pdf", "two.pdf", "bad.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF"), 0o644))
	}
	mock.FailUpload("bad", 200)

	code, out, _ := execute(t, "import", "folder", dir, "--concurrency", "2")
	require.Equal(t, 0, code, "upload failures do not fail the run")
	assert.Contains(t, out, "Workspace: folder-papers")
	assert.Contains(t, out, "uploaded: 2")
	assert.Contains(t, out, "failed:   1")
	assert.Contains(t, out, "embedded: 2 documents")
	assert.Contains(t, out, "failures logged to")

	code, _, errOut := execute(t, "import", "folder", dir, "-q")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "workspace already exists")

	code, _, _ = execute(t, "import", "folder", dir, "-q", "--replace")
	assert.Equal(t, 0, code)

	code, out, _ = execute(t, "documents", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "custom-documents/one.json")
}

func TestImportEmbedFailureExitStatus(t *testing.T) {
	isolate(t)
	mock := withAnythingLLM(t)
	mock.FailEmbeddings(500)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.pdf"), []byte("%PDF"), 0o644))

	code, out, _ := execute(t, "import", "folder", dir, "-q", "--discard-on-embed-failure")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "embedding failed, workspace discarded")
}

func TestZoteroCommands(t *testing.T) {
	isolate(t)
	llm := withAnythingLLM(t)
	z := testutil.NewMockZotero("42", "zkey")
	t.Cleanup(z.Close)

	library := t.TempDir()
	it := testutil.PDFAttachment("ABCD1234", "Carbon cycle")
	require.NoError(t, os.MkdirAll(filepath.Join(library, it.Key), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(library, it.Key, it.Filename), []byte("%PDF"), 0o644))
	z.AddCollection(testutil.ZoteroCollection{Key: "COLL1", Name: "Climate"}, it)

	t.Setenv("AYDA_ZOTERO_USER_ID", "42")
	t.Setenv("AYDA_ZOTERO_API_KEY", "zkey")
	t.Setenv("AYDA_ZOTERO_BASE_URL", z.URL())
	t.Setenv("AYDA_ZOTERO_LIBRARY_ROOT", library)

	code, out, _ := execute(t, "zotero", "collections")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "COLL1 Climate")

	code, out, _ = execute(t, "import", "zotero", "climate", "-q")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Workspace: zotero-climate")
	assert.Contains(t, out, "uploaded: 1")

	ws, ok := llm.Workspace("zotero-climate")
	require.True(t, ok)
	assert.Equal(t, []string{"custom-documents/Carbon-cycle.json"}, ws.Documents)
}
