package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DiagnosticLimit bounds how much tool output is kept for error messages.
	DiagnosticLimit = 4096
	// killGrace is how long Wait may block on inherited pipes after a kill.
	killGrace = 2 * time.Second
)

// Outcome tags a conversion run.
type Outcome int

const (
	// Succeeded means exit status 0 and a non-empty output file.
	Succeeded Outcome = iota
	// Failed means a non-zero exit, a missing output, or a spawn error.
	Failed
	// TimedOut means the run hit the deadline and was killed.
	TimedOut
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result describes one conversion run.
type Result struct {
	Outcome Outcome
	// ExitCode is -1 when the process never ran or was killed.
	ExitCode int
	// Diagnostic is the tail of stderr, or of stdout when stderr is empty.
	Diagnostic string
	Duration   time.Duration
}

// Summary is a one-line human description of a non-successful run.
func (r Result) Summary() string {
	switch r.Outcome {
	case Succeeded:
		return "conversion succeeded"
	case TimedOut:
		return fmt.Sprintf("conversion timed out after %s", r.Duration.Round(time.Millisecond))
	default:
		if r.Diagnostic == "" {
			return fmt.Sprintf("conversion failed with code %d", r.ExitCode)
		}
		return fmt.Sprintf("conversion failed with code %d: %s", r.ExitCode, r.Diagnostic)
	}
}

// Converter turns a session input into HTML at output.
type Converter interface {
	Convert(ctx context.Context, input, output string, extraArgs []string) Result
}

// Runner invokes the external conversion tool as
// `tool -input <input> -output <output> [extraArgs...]`.
type Runner struct {
	binaryPath string
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewRunner creates a Runner for the tool at binaryPath.
func NewRunner(binaryPath string, timeout time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{
		binaryPath: binaryPath,
		timeout:    timeout,
		logger:     logger,
	}
}

// Convert runs the tool with a hard timeout. The run is detached from ctx's
// cancellation: an abandoned request does not kill a conversion in progress,
// only the timeout does.
func (r *Runner) Convert(ctx context.Context, input, output string, extraArgs []string) Result {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	args := append([]string{"-input", input, "-output", output}, extraArgs...)
	// #nosec G204 -- binary path is operator configured; arguments are resolved paths.
	cmd := exec.CommandContext(runCtx, r.binaryPath, args...)
	cmd.WaitDelay = killGrace

	stdout := &tailBuffer{limit: DiagnosticLimit}
	stderr := &tailBuffer{limit: DiagnosticLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	result := Result{Duration: time.Since(start), ExitCode: -1}

	diagnostic := strings.TrimSpace(stderr.String())
	if diagnostic == "" {
		diagnostic = strings.TrimSpace(stdout.String())
	}
	result.Diagnostic = diagnostic

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Outcome = TimedOut
	case err != nil:
		result.Outcome = Failed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else if result.Diagnostic == "" {
			result.Diagnostic = err.Error()
		}
	default:
		result.ExitCode = 0
		result.Outcome = Succeeded
		if info, statErr := os.Stat(output); statErr != nil || info.Size() == 0 {
			result.Outcome = Failed
			result.Diagnostic = "conversion tool exited 0 without writing output"
		}
	}

	r.logger.WithFields(logrus.Fields{
		"outcome":     result.Outcome.String(),
		"exit_code":   result.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
	}).Debug("Conversion tool finished")

	return result
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
