package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"media-converter/internal/domain"
)

// minAvailableMemory is the free RAM below which conversions of large
// sources are likely to fail; the whole source and output are held in memory.
const minAvailableMemory = 1 << 30

// Checker validates the engine binary, the output directory and host memory.
type Checker struct {
	ffmpeg        string
	lookPath      func(string) (string, error)
	mkdirAll      func(string, os.FileMode) error
	createTemp    func(string, string) (*os.File, error)
	remove        func(string) error
	virtualMemory func() (*mem.VirtualMemoryStat, error)
}

// NewChecker builds a checker using real OS dependencies. An empty binary
// name means "ffmpeg".
func NewChecker(ffmpegBinary string) *Checker {
	return &Checker{
		ffmpeg:        defaultBinary(ffmpegBinary),
		lookPath:      exec.LookPath,
		mkdirAll:      os.MkdirAll,
		createTemp:    os.CreateTemp,
		remove:        os.Remove,
		virtualMemory: mem.VirtualMemory,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(c.ffmpeg),
		c.checkOutputDir(settings.OutputDir),
		c.checkMemory(),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies the engine executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_ffmpeg",
			Name:    "ffmpeg",
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install ffmpeg and ensure the binary is available on PATH before converting.",
			Fixable: true,
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_ffmpeg",
		Name:    "ffmpeg",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where converted videos can be written."
		item.Fixable = true
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		item.Fixable = true
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for converted videos."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// checkMemory warns when little RAM is available. It never fails the report.
func (c *Checker) checkMemory() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "memory",
		Name: "Available memory",
	}

	stat, err := c.virtualMemory()
	if err != nil || stat == nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Could not read available memory."
		return item
	}

	if stat.Available < minAvailableMemory {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Only %s of memory available.", formatBytes(stat.Available))
		item.Hint = "Close other applications or convert fewer large files at once."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s available of %s.", formatBytes(stat.Available), formatBytes(stat.Total))
	return item
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func defaultBinary(name string) string {
	if strings.TrimSpace(name) == "" {
		return "ffmpeg"
	}
	return name
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	virtualMemory func() (*mem.VirtualMemoryStat, error),
) *Checker {
	return &Checker{
		ffmpeg:        "ffmpeg",
		lookPath:      lookPath,
		mkdirAll:      mkdirAll,
		createTemp:    createTemp,
		remove:        remove,
		virtualMemory: virtualMemory,
	}
}
