package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-converter/internal/domain"
)

func plentyOfMemory() (*mem.VirtualMemoryStat, error) {
	return &mem.VirtualMemoryStat{Total: 16 << 30, Available: 8 << 30}, nil
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "output")
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		plentyOfMemory,
	)

	report := checker.Run(domain.Settings{OutputDir: outputDir})

	require.False(t, report.HasFailures, "%+v", report.Items)
	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "memory", domain.DiagnosticStatusPass)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write check must clean up")
}

// TestCheckerRunMissingToolAndOutputDir validates failure reporting.
func TestCheckerRunMissingToolAndOutputDir(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		plentyOfMemory,
	)

	report := checker.Run(domain.Settings{OutputDir: ""})

	assert.True(t, report.HasFailures)
	tool := assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assert.True(t, tool.Fixable)
	out := assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
	assert.True(t, out.Fixable)
}

// TestCheckerLowMemoryWarnsWithoutFailing keeps memory advisory.
func TestCheckerLowMemoryWarnsWithoutFailing(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 2 << 30, Available: 256 << 20}, nil
		},
	)

	report := checker.Run(domain.Settings{OutputDir: t.TempDir()})

	assert.False(t, report.HasFailures)
	item := assertStatusByID(t, report, "memory", domain.DiagnosticStatusWarn)
	assert.Contains(t, item.Message, "256.0 MiB")
}

// TestCheckerMemoryReadError degrades to a warning.
func TestCheckerMemoryReadError(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc") },
	)

	report := checker.Run(domain.Settings{OutputDir: t.TempDir()})
	assertStatusByID(t, report, "memory", domain.DiagnosticStatusWarn)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			assert.Equal(t, want, item.Status, "item %s", id)
			return item
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
	return domain.DiagnosticItem{}
}
