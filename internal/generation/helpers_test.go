package generation_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/cclog-share/internal/generation"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
)

func nullLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// writeFile writes content under dir and returns the full path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// writeTool writes an executable shell script that understands
// `-input <in> -output <out> [extra...]` and then runs body.
func writeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools are not supported on windows")
	}

	script := `#!/bin/sh
in=""
out=""
extra=""
while [ $# -gt 0 ]; do
  case "$1" in
    -input) in="$2"; shift 2 ;;
    -output) out="$2"; shift 2 ;;
    *) extra="$extra $1"; shift ;;
  esac
done
` + body + "\n"

	path := filepath.Join(t.TempDir(), "cclogviewer")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700)) // #nosec G306 -- test tool must be executable
	return path
}

// fakeConverter is an in-process Converter that records invocations.
type fakeConverter struct {
	calls atomic.Int32

	mu       sync.Mutex
	fail     bool
	delay    time.Duration
	lastArgs []string
}

func (f *fakeConverter) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeConverter) args() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastArgs
}

func (f *fakeConverter) Convert(_ context.Context, input, output string, extraArgs []string) generation.Result {
	f.calls.Add(1)

	f.mu.Lock()
	fail, delay := f.fail, f.delay
	f.lastArgs = extraArgs
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		_ = os.WriteFile(output, []byte("partial"), 0o600)
		return generation.Result{Outcome: generation.Failed, ExitCode: 2, Diagnostic: "boom"}
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return generation.Result{Outcome: generation.Failed, ExitCode: -1, Diagnostic: err.Error()}
	}
	if err := os.WriteFile(output, append([]byte("<html>"), data...), 0o600); err != nil {
		return generation.Result{Outcome: generation.Failed, ExitCode: -1, Diagnostic: err.Error()}
	}
	return generation.Result{Outcome: generation.Succeeded, Duration: delay}
}
