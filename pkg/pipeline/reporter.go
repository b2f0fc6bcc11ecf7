package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/rs/zerolog"
)

// LogTimeLayout is the timestamp layout of failure log file names.
const LogTimeLayout = "2006-01-02_15-04-05"

// FailureLog describes a written failure log.
type FailureLog struct {
	Path  string
	Count int
}

// Reporter persists the failed items of a run for later remediation.
type Reporter struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// NewReporter creates a reporter writing into dir.
func NewReporter(dir string, logger zerolog.Logger) *Reporter {
	return &Reporter{dir: dir, now: time.Now, logger: logger}
}

// LogPath returns the failure log path for a run started at t.
func (r *Reporter) LogPath(t time.Time) string {
	return filepath.Join(r.dir, "log_"+t.Format(LogTimeLayout)+".txt")
}

// Report writes one line per failed item to a new <dir>/log_<timestamp>.txt.
// Each run gets its own file; a numeric suffix separates runs started in the
// same second.
//
// With no failures it returns nil, nil and touches nothing. If the log cannot
// be written the FailureLog is still returned, with a *failure.LogWriteError.
func (r *Reporter) Report(failed []Failure) (*FailureLog, error) {
	if len(failed) == 0 {
		return nil, nil
	}

	fl := &FailureLog{Path: r.LogPath(r.now()), Count: len(failed)}
	path, err := r.write(fl.Path, failed)
	if path != "" {
		fl.Path = path
	}
	if err != nil {
		failureLogs.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Str("path", fl.Path).Int("failed", fl.Count).Msg("Failed to write failure log")
		return fl, &failure.LogWriteError{Path: fl.Path, Err: err}
	}

	failureLogs.WithLabelValues("written").Inc()
	r.logger.Info().Str("path", fl.Path).Int("failed", fl.Count).Msg("Failure log written")
	return fl, nil
}

// maxLogSuffix bounds the search for a free log name within one second.
const maxLogSuffix = 100

// write creates a new log at path, or at path with a numeric suffix when a
// run started in the same second already wrote one, and returns the path
// used.
func (r *Reporter) write(path string, failed []Failure) (used string, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, used, err := createExclusive(path)
	if err != nil {
		return used, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	for _, fail := range failed {
		if _, err := fmt.Fprintln(w, FormatFailure(fail)); err != nil {
			return used, err
		}
	}
	return used, w.Flush()
}

func createExclusive(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	candidate := path
	for n := 2; ; n++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) || n > maxLogSuffix {
			return nil, candidate, err
		}
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

// FormatFailure renders one failure log line: key, name and cause separated by tabs.
func FormatFailure(f Failure) string {
	cause := "unknown error"
	if f.Err != nil {
		cause = fmt.Sprintf("%s: %s", f.Err.Kind, f.Err.Message)
	}
	return strings.Join([]string{f.Item.Key, oneLine(f.Item.Name()), oneLine(cause)}, "\t")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
