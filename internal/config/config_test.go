package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Empty(t, cfg.File, "no default file exists")
	assert.Equal(t, "https://api.zotero.org", cfg.Zotero.BaseURL)
	assert.Equal(t, 100, cfg.Zotero.PageSize)
	assert.Equal(t, 5.0, cfg.Zotero.RequestsPerSecond)
	assert.Equal(t, 1, cfg.Zotero.MaxPageConcurrency)
	assert.Equal(t, "http://localhost:3001", cfg.AnythingLLM.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.AnythingLLM.Timeout)
	assert.Equal(t, int64(50<<20), cfg.AnythingLLM.MaxFileSize)
	assert.Equal(t, 100, cfg.Import.MaxConcurrency)
	assert.Zero(t, cfg.Import.UploadTimeout)
	assert.Equal(t, "application/pdf", cfg.Import.ContentType)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Metrics.Addr)

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Import.LogDir)
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
zotero:
  user_id: "12345"
  api_key: zkey
  library_root: /data/zotero/storage
anythingllm:
  api_key: akey
  timeout: 2m
import:
  max_concurrency: 8
  upload_timeout: 45s
redis:
  addr: localhost:6379
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "12345", cfg.Zotero.UserID)
	assert.Equal(t, "/data/zotero/storage", cfg.Zotero.LibraryRoot)
	assert.Equal(t, 2*time.Minute, cfg.AnythingLLM.Timeout)
	assert.Equal(t, 8, cfg.Import.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Import.UploadTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 100, cfg.Zotero.PageSize, "unset keys keep defaults")
}

func TestLoadDefaultPathFile(t *testing.T) {
	isolate(t)
	path, err := DefaultPath()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	isolate(t)
	_, err := Load(New(), writeConfig(t, "zotero: [unclosed"))
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "import:\n  max_concurrency: 8\nzotero:\n  api_key: from-file\n")
	t.Setenv("AYDA_ZOTERO_API_KEY", "from-env")
	t.Setenv("AYDA_IMPORT_MAX_CONCURRENCY", "16")

	v := New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 4, "")
	flags.String("log-level", "info", "")
	require.NoError(t, BindFlags(v, map[string]*pflag.Flag{
		"import.max_concurrency": flags.Lookup("concurrency"),
		"log.level":              flags.Lookup("log-level"),
		"missing":                nil,
	}))
	require.NoError(t, flags.Parse([]string{"--concurrency", "32"}))

	cfg, err := Load(v, path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Zotero.APIKey, "env beats file")
	assert.Equal(t, 32, cfg.Import.MaxConcurrency, "set flag beats env")
	assert.Equal(t, "info", cfg.Log.Level, "unset flag keeps lower layers")
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load(New(), "")
	require.NoError(t, err)

	err = base.Validate(NeedZotero | NeedAnythingLLM | NeedLibrary)
	require.ErrorIs(t, err, ErrMissingCredentials)
	for _, want := range []string{"AYDA_ZOTERO_USER_ID", "AYDA_ZOTERO_API_KEY", "AYDA_ZOTERO_LIBRARY_ROOT", "AYDA_ANYTHINGLLM_API_KEY"} {
		assert.Contains(t, err.Error(), want)
	}

	ok := *base
	ok.AnythingLLM.APIKey = "k"
	assert.NoError(t, ok.Validate(NeedAnythingLLM))
	assert.ErrorIs(t, ok.Validate(NeedZotero), ErrMissingCredentials)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero concurrency", func(c *Config) { c.Import.MaxConcurrency = 0 }},
		{"negative upload timeout", func(c *Config) { c.Import.UploadTimeout = -time.Second }},
		{"page size over limit", func(c *Config) { c.Zotero.PageSize = 101 }},
		{"zero page concurrency", func(c *Config) { c.Zotero.MaxPageConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ok
			tt.mutate(&c)
			err := c.Validate(NeedAnythingLLM)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrMissingCredentials)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "AYDA_ANYTHINGLLM_MAX_FILE_SIZE", EnvKey("anythingllm.max_file_size"))
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefault(path))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.AnythingLLM.Timeout)
	assert.Equal(t, 100, cfg.Import.MaxConcurrency)

	err = WriteDefault(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
