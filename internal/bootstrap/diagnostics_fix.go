package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"media-converter/internal/config"
	"media-converter/internal/domain"
	"media-converter/internal/jobs"
)

const (
	installStepTimeout = 30 * time.Minute
	commandOutputLimit = 500
)

var errNoPackageManager = errors.New("no supported package manager found")

// installPlan is one package manager's way of installing a tool. Privileged
// plans are retried through pkexec or sudo on Linux.
type installPlan struct {
	manager    string
	steps      [][]string
	privileged bool
}

var ffmpegPlans = map[string][]installPlan{
	"windows": {
		{manager: "winget", steps: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
		{manager: "choco", steps: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
		{manager: "scoop", steps: [][]string{{"scoop", "install", "ffmpeg"}}},
	},
	"darwin": {
		{manager: "brew", steps: [][]string{{"brew", "install", "ffmpeg"}}},
	},
	"linux": {
		{manager: "apt-get", steps: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}, privileged: true},
		{manager: "dnf", steps: [][]string{{"dnf", "install", "-y", "ffmpeg"}}, privileged: true},
		{manager: "pacman", steps: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}, privileged: true},
		{manager: "zypper", steps: [][]string{{"zypper", "install", "-y", "ffmpeg"}}, privileged: true},
		{manager: "brew", steps: [][]string{{"brew", "install", "ffmpeg"}}},
	},
}

// toolInstaller installs a missing engine binary with whatever package
// manager the host offers.
type toolInstaller struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	log      *zap.Logger
}

func newToolInstaller(log *zap.Logger) *toolInstaller {
	return &toolInstaller{
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
		run:      runCombined,
		log:      log,
	}
}

// install tries each available plan in order until one succeeds and tool is
// resolvable on PATH.
func (t *toolInstaller) install(ctx context.Context, tool string, plans map[string][]installPlan) error {
	available := lo.Filter(plans[t.goos], func(plan installPlan, _ int) bool {
		return t.has(plan.manager)
	})
	if len(available) == 0 {
		return fmt.Errorf("%w for %s", errNoPackageManager, t.goos)
	}

	var failures []error
	for _, plan := range available {
		err := t.apply(ctx, plan)
		if err == nil {
			t.log.Info("tool installed", zap.String("tool", tool), zap.String("manager", plan.manager))
			return t.verify(tool)
		}
		t.log.Warn("install attempt failed", zap.String("tool", tool), zap.String("manager", plan.manager), zap.Error(err))
		failures = append(failures, fmt.Errorf("%s: %w", plan.manager, err))
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(failures...)
}

func (t *toolInstaller) apply(ctx context.Context, plan installPlan) error {
	for _, step := range plan.steps {
		if err := t.runStep(ctx, step, plan.privileged); err != nil {
			return err
		}
	}
	return nil
}

// runStep runs step as is, then through each elevation wrapper, stopping at
// the first success.
func (t *toolInstaller) runStep(ctx context.Context, step []string, privileged bool) error {
	var errs []error
	for _, command := range t.elevations(step, privileged) {
		out, err := t.run(ctx, command[0], command[1:]...)
		if err == nil {
			return nil
		}
		errs = append(errs, commandError(command, out, err))
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func (t *toolInstaller) elevations(step []string, privileged bool) [][]string {
	attempts := [][]string{step}
	if !privileged || t.goos != "linux" {
		return attempts
	}
	for _, wrapper := range [][]string{{"pkexec"}, {"sudo", "-n"}} {
		if t.has(wrapper[0]) {
			attempts = append(attempts, append(slices.Clone(wrapper), step...))
		}
	}
	return attempts
}

func (t *toolInstaller) verify(tool string) error {
	if !t.has(tool) {
		return fmt.Errorf("%s still not found on PATH after install", tool)
	}
	return nil
}

func (t *toolInstaller) has(name string) bool {
	_, err := t.lookPath(name)
	return err == nil
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, installStepTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("timed out after %s: %w", installStepTimeout, ctx.Err())
	}
	return out, err
}

// commandError keeps the tail of the command output, where package managers
// print the actual failure.
func commandError(command []string, output []byte, err error) error {
	line := strings.Join(command, " ")
	detail := strings.TrimSpace(string(output))
	if detail == "" {
		return fmt.Errorf("%s: %w", line, err)
	}
	if len(detail) > commandOutputLimit {
		detail = "..." + detail[len(detail)-commandOutputLimit:]
	}
	return fmt.Errorf("%s: %w (%s)", line, err, detail)
}

// InstallOrFixDiagnostic remediates one failed diagnostic item and returns
// the refreshed report.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, errors.New("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	changed := false
	var fixErr error
	switch id {
	case "tool_ffmpeg":
		if a.batchActive() {
			return domain.DiagnosticReport{}, jobs.ErrRunInProgress
		}
		fixErr = a.toolInstaller().install(a.fixContext(), "ffmpeg", ffmpegPlans)
	case "output_dir":
		settings, changed, fixErr = fixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %q", id)
	}

	if changed {
		if err := a.Store.Save(settings); err != nil {
			return a.refreshDiagnosticsFromSettings(settings), fmt.Errorf("save settings after fix: %w", err)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.logger().Warn("diagnostic fix failed", zap.String("item", id), zap.Error(fixErr))
		return report, fixErr
	}
	a.logger().Info("diagnostic fixed", zap.String("item", id))
	return report, nil
}

func (a *App) toolInstaller() *toolInstaller {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installer == nil {
		a.installer = newToolInstaller(a.logger().Named("install"))
	}
	return a.installer
}

// fixContext ties installs to the window lifetime when the UI is running.
func (a *App) fixContext() context.Context {
	if ctx, err := a.runtimeContext(); err == nil {
		return ctx
	}
	return context.Background()
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// fixOutputDir creates the output directory, falling back to the default
// location when none is configured.
func fixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	changed := false
	if settings.OutputDir == "" {
		settings.OutputDir = config.DefaultSettings().OutputDir
		changed = true
	}
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", settings.OutputDir, err)
	}
	return settings, changed, nil
}

// addToolDir prepends dir to PATH once, so user-local engine binaries are
// found before system ones.
func addToolDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries := filepath.SplitList(os.Getenv("PATH"))
	if lo.ContainsBy(entries, func(entry string) bool { return filepath.Clean(entry) == filepath.Clean(dir) }) {
		return nil
	}
	return os.Setenv("PATH", strings.Join(append([]string{dir}, entries...), string(os.PathListSeparator)))
}

func toolDir(homeDir string) string {
	return filepath.Join(appDir(homeDir), "bin")
}
