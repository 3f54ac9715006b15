package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/spf13/afero"
)

const (
	stderrTailBytes = 16 << 10
	maxReasonBytes  = 200
)

// preamble is prepended to every invocation so progress is machine readable.
var preamble = []string{"-hide_banner", "-nostdin", "-progress", "pipe:1", "-nostats"}

// commandResult is an internal process execution response.
type commandResult struct {
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command, streaming its output to the given writers.
func (r *execRunner) Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err != nil {
		result := commandResult{ExitCode: -1}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return commandResult{}, nil
}

// FFmpegLoader locates the ffmpeg binary and prepares a private workspace.
type FFmpegLoader struct {
	binary        string
	workspaceRoot string
	runner        commandRunner
	lookPath      func(string) (string, error)
	mkdirTemp     func(dir, pattern string) (string, error)
}

// NewFFmpegLoader builds a loader for the named ffmpeg binary. The
// workspace is created under workspaceRoot, or the OS temp dir when empty.
func NewFFmpegLoader(binary, workspaceRoot string) *FFmpegLoader {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegLoader{
		binary:        binary,
		workspaceRoot: workspaceRoot,
		runner:        &execRunner{},
		lookPath:      exec.LookPath,
		mkdirTemp:     os.MkdirTemp,
	}
}

// Load resolves the binary, checks it answers -version and creates the
// workspace the handle stages files in.
func (l *FFmpegLoader) Load(ctx context.Context) (Handle, error) {
	path, err := l.lookPath(l.binary)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", l.binary, err)
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}
	if _, err := l.runner.Run(ctx, "", path, []string{"-hide_banner", "-version"}, &stdout, stderr); err != nil {
		return nil, fmt.Errorf("run %s -version: %w", path, err)
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout.String()), "ffmpeg version") {
		return nil, fmt.Errorf("%s does not look like ffmpeg", path)
	}

	dir, err := l.mkdirTemp(l.workspaceRoot, "media-converter-*")
	if err != nil {
		return nil, fmt.Errorf("create engine workspace: %w", err)
	}

	return &FFmpegHandle{
		binary:    path,
		dir:       dir,
		fs:        afero.NewBasePathFs(afero.NewOsFs(), dir),
		runner:    l.runner,
		removeAll: os.RemoveAll,
	}, nil
}

// FFmpegHandle runs ffmpeg against files staged in its workspace.
type FFmpegHandle struct {
	binary    string
	dir       string
	fs        afero.Fs
	runner    commandRunner
	removeAll func(string) error

	mu         sync.Mutex
	observerID uint64
	observer   func(float64)
}

// Workspace returns the directory backing the virtual filesystem.
func (h *FFmpegHandle) Workspace() string {
	return h.dir
}

// WriteFile stages data under name in the workspace.
func (h *FFmpegHandle) WriteFile(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return afero.WriteFile(h.fs, name, data, 0o644)
}

// ReadFile returns the workspace entry name.
func (h *FFmpegHandle) ReadFile(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return afero.ReadFile(h.fs, name)
}

// DeleteFile removes the workspace entry name.
func (h *FFmpegHandle) DeleteFile(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return h.fs.Remove(name)
}

// OnProgress replaces the active observer; the returned func only clears
// the observer it installed.
func (h *FFmpegHandle) OnProgress(fn func(ratio float64)) func() {
	h.mu.Lock()
	h.observerID++
	id := h.observerID
	h.observer = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.observerID == id {
			h.observer = nil
		}
	}
}

func (h *FFmpegHandle) notify(ratio float64) {
	h.mu.Lock()
	fn := h.observer
	h.mu.Unlock()
	if fn != nil {
		fn(ratio)
	}
}

// Exec runs ffmpeg with args inside the workspace. Cancelling ctx kills
// the process.
func (h *FFmpegHandle) Exec(ctx context.Context, args []string) error {
	full := make([]string, 0, len(preamble)+len(args))
	full = append(full, preamble...)
	full = append(full, args...)

	parser := newProgressParser(args, h.notify)
	tail := &tailBuffer{max: stderrTailBytes}
	stdout := &lineWriter{fn: parser.stdoutLine}
	stderrLines := &lineWriter{fn: parser.stderrLine}

	result, runErr := h.runner.Run(ctx, h.dir, h.binary, full, stdout, io.MultiWriter(tail, stderrLines))
	stdout.Flush()
	stderrLines.Flush()

	if runErr == nil {
		return nil
	}

	log := CommandLog{
		Command:  h.binary,
		Args:     full,
		ExitCode: result.ExitCode,
		Stderr:   tail.String(),
	}
	reason := failureReason(log.Stderr, runErr)
	if ctx.Err() != nil {
		reason = "cancelled"
		runErr = errors.Join(ctx.Err(), runErr)
	}
	return &ExecError{Reason: reason, CommandLog: log, Err: runErr}
}

// Close removes the workspace and everything left in it.
func (h *FFmpegHandle) Close() error {
	if h.dir == "" || h.removeAll == nil {
		return nil
	}
	return h.removeAll(h.dir)
}

// failureReason picks the last meaningful stderr line as the user-facing
// message.
func failureReason(stderr string, err error) string {
	lines := strings.FieldsFunc(stderr, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "Conversion failed") {
			continue
		}
		return truncateReason(line)
	}
	if err != nil {
		return err.Error()
	}
	return "conversion failed"
}

// truncateReason caps line at maxReasonBytes without splitting a UTF-8
// sequence.
func truncateReason(line string) string {
	if len(line) <= maxReasonBytes {
		return line
	}
	cut := maxReasonBytes
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "..."
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
