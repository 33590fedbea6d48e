package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable means the external ffmpeg/ffprobe binary could not be
	// found or executed at all.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrTimeout means a subprocess exceeded its wall-clock budget and was
	// killed together with its process group.
	ErrTimeout = errors.New("engine timed out")
)

// ExecError reports a subprocess that ran but exited non-zero. The caller
// decides whether that is user-facing; nothing here retries.
type ExecError struct {
	Code   int
	Stderr string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("engine exited with code %d: %s", e.Code, e.Stderr)
}

// Outcome carries the exit status and captured streams of one invocation.
// The engine does not interpret them; that is the converter's job.
type Outcome struct {
	Code     int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Info describes the probed engine binary.
type Info struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Engine invokes the external media engine (ffmpeg) and its prober
// (ffprobe) as subprocesses. Arguments are always passed as a vector, never
// through a shell: user-influenced filenames and parameters must not be
// interpretable. A semaphore bounds concurrent subprocesses so a burst of
// requests cannot fork without limit.
type Engine struct {
	ffmpeg  string
	ffprobe string
	sem     chan struct{}
	log     *zap.Logger
}

func New(ffmpegPath, ffprobePath string, maxParallel int, log *zap.Logger) *Engine {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Engine{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		sem:     make(chan struct{}, maxParallel),
		log:     log,
	}
}

// Probe checks the engine binary is reachable and returns its reported
// version line.
func (e *Engine) Probe(ctx context.Context) (Info, error) {
	if err := e.acquire(ctx); err != nil {
		return Info{}, err
	}
	defer e.release()

	out, err := e.exec(ctx, e.ffmpeg, []string{"-version"}, 10*time.Second)
	if err != nil {
		return Info{}, err
	}
	version := out.Stdout
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return Info{Path: e.ffmpeg, Version: strings.TrimSpace(version)}, nil
}

// Run invokes ffmpeg with the given argument vector under a hard timeout.
func (e *Engine) Run(ctx context.Context, args []string, timeout time.Duration) (Outcome, error) {
	if err := e.acquire(ctx); err != nil {
		return Outcome{}, err
	}
	defer e.release()

	return e.exec(ctx, e.ffmpeg, args, timeout)
}

// acquire takes a semaphore slot, checking for cancellation first so a dead
// context never wins the race against a free slot.
func (e *Engine) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() { <-e.sem }

func (e *Engine) exec(ctx context.Context, bin string, args []string, timeout time.Duration) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	// Run in its own process group so a timeout kill also reaps any
	// children ffmpeg forked.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		e.log.Debug("engine run ok",
			zap.String("bin", bin),
			zap.Duration("took", outcome.Duration))
		return outcome, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		e.log.Warn("engine run timed out",
			zap.String("bin", bin),
			zap.Duration("timeout", timeout))
		return outcome, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	// Caller went away; this is not an engine failure.
	if ctx.Err() != nil {
		e.log.Debug("engine run canceled", zap.String("bin", bin))
		return outcome, fmt.Errorf("engine run canceled: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.Code = exitErr.ExitCode()
		e.log.Warn("engine run failed",
			zap.String("bin", bin),
			zap.Int("code", outcome.Code),
			zap.String("stderr", TailLines(outcome.Stderr, 4)))
		return outcome, &ExecError{Code: outcome.Code, Stderr: TailLines(outcome.Stderr, 8)}
	}

	// Could not start at all: missing binary, bad permissions.
	e.log.Error("engine not runnable", zap.String("bin", bin), zap.Error(err))
	return outcome, fmt.Errorf("%w: %s: %v", ErrUnavailable, bin, err)
}

// TailLines keeps the last n non-empty lines of subprocess output, which is
// where ffmpeg puts the actual reason it failed.
func TailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, "\n")
}
