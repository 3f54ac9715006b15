package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"media-converter/internal/archive"
	"media-converter/internal/config"
	"media-converter/internal/diagnostics"
	"media-converter/internal/domain"
	"media-converter/internal/engine"
	"media-converter/internal/jobs"
	"media-converter/internal/logging"
	"media-converter/internal/metrics"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrNoActiveBatch is returned when cancelling while nothing runs.
var ErrNoActiveBatch = errors.New("no batch is running")

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.m4v;*.mov;*.mkv;*.webm;*.avi;*.wmv;*.flv;*.mpg;*.mpeg;*.3gp;*.ts;*.mts;*.ogv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var zipDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Zip archives",
		Pattern:     "*.zip",
	},
}

// App wires configuration, the job list, the orchestrator and UI runtime
// callbacks.
type App struct {
	Settings     domain.Settings
	Store        config.Store
	Jobs         *jobs.Manager
	Orchestrator *jobs.Orchestrator
	Engines      *engine.Manager
	Diagnostics  domain.DiagnosticReport
	Log          *zap.Logger
	Registry     *prometheus.Registry

	assets      fs.FS
	checker     *diagnostics.Checker
	installer   *toolInstaller
	loadSources func([]string) ([]domain.Artifact, []jobs.Rejected)
	metricsFile string

	mu         sync.Mutex
	cancel     context.CancelFunc
	runDone    chan struct{}
	runtimeCtx context.Context
	stopEvents func()
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := addToolDir(toolDir(homeDir)); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewYAMLStore(config.DefaultPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	log, err := logging.New(logging.Config{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
		File:   filepath.Join(appDir(homeDir), "logs", "app.log"),
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)

	engines := engine.NewManager(engine.NewFFmpegLoader("ffmpeg", ""), log.Named("engine"), rec)
	manager := jobs.NewManager(jobs.NewEventBus(1000))

	checker := diagnostics.NewChecker("ffmpeg")
	report := checker.Run(settings)

	return &App{
		Settings:     settings,
		Store:        store,
		Jobs:         manager,
		Orchestrator: jobs.NewOrchestrator(engines, manager, log.Named("batch"), rec),
		Engines:      engines,
		Diagnostics:  report,
		Log:          log,
		Registry:     registry,
		assets:       assets,
		checker:      checker,
		metricsFile:  filepath.Join(appDir(homeDir), "metrics.prom"),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Media Converter",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     true,
			DisableWebViewDrop: true,
		},
		OnStartup:  a.Startup,
		OnShutdown: a.Shutdown,
		Bind:       []interface{}{a},
	})
}

// Startup stores the Wails runtime context, forwards job events to the
// frontend and accepts dropped files.
func (a *App) Startup(ctx context.Context) {
	events, stop := a.Jobs.Events().Subscribe(256)

	a.mu.Lock()
	a.runtimeCtx = ctx
	a.stopEvents = stop
	a.mu.Unlock()

	go func() {
		for event := range events {
			wailsruntime.EventsEmit(ctx, "job:event", event)
		}
	}()

	wailsruntime.OnFileDrop(ctx, func(_, _ int, paths []string) {
		if _, err := a.AddFiles(paths); err != nil {
			a.logger().Warn("dropped files ignored", zap.Error(err))
		}
	})
}

// Shutdown cancels a running batch, releases the engine and writes the
// final metrics snapshot.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	done := a.runDone
	stop := a.stopEvents
	a.runtimeCtx = nil
	a.stopEvents = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if stop != nil {
		stop()
	}

	log := a.logger()
	if a.Engines != nil {
		if err := a.Engines.Close(); err != nil {
			log.Warn("release engine", zap.Error(err))
		}
	}
	if a.Registry != nil && a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.Registry); err != nil {
			log.Warn("write metrics snapshot", zap.Error(err))
		}
	}
	_ = log.Sync()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// SelectFiles opens a native multi-file dialog and replaces the job list
// with the chosen videos. Cancelling the dialog keeps the current list.
func (a *App) SelectFiles() ([]domain.Job, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select videos",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return a.Jobs.Jobs(), nil
	}

	return a.AddFiles(paths)
}

// AddFiles replaces the job list with the videos among paths. Files that
// are not video are reported as error events and skipped.
func (a *App) AddFiles(paths []string) ([]domain.Job, error) {
	if a.batchActive() {
		return nil, jobs.ErrRunInProgress
	}

	load := a.loadSources
	if load == nil {
		load = jobs.LoadSources
	}
	sources, rejected := load(paths)
	for _, r := range rejected {
		a.logger().Info("file skipped", zap.String("path", r.Path), zap.String("reason", r.Reason))
		a.Jobs.Events().Publish(jobs.Event{
			Type:    jobs.EventTypeError,
			Message: fmt.Sprintf("%s: %s", filepath.Base(r.Path), r.Reason),
		})
	}
	if len(sources) == 0 {
		return a.Jobs.Jobs(), nil
	}

	// Reading files is slow; a batch may have started meanwhile. Holding mu
	// keeps StartBatch out until the new selection is in place.
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil, jobs.ErrRunInProgress
	}
	return a.Jobs.Reset(sources, a.Settings.Options.Format), nil
}

// ListJobs returns the current job list in selection order.
func (a *App) ListJobs() []domain.Job {
	return a.Jobs.Jobs()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Jobs.Events().Since(sinceSeq)
}

// StartBatch converts every pending job with opts in the background and
// remembers opts as the preferred preset.
func (a *App) StartBatch(opts domain.Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return jobs.ErrRunInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel = cancel
	a.runDone = done
	settings := a.Settings
	a.mu.Unlock()

	settings.Options = opts
	a.rememberOptions(settings)

	go func() {
		defer close(done)
		defer a.clearActiveRun(done)

		summary, err := a.Orchestrator.Run(ctx, opts)
		log := a.logger()
		switch {
		case errors.Is(err, context.Canceled):
			log.Info("batch cancelled", zap.Int("pending", summary.Pending))
		case err != nil:
			log.Error("batch failed", zap.Error(err))
		}
	}()
	return nil
}

// CancelBatch stops the running batch. The job being converted ends in
// error and the rest stay pending.
func (a *App) CancelBatch() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return ErrNoActiveBatch
	}
	cancel()
	return nil
}

// SaveJobOutput asks where to store one converted file and writes it.
// It returns the saved path, or "" when the dialog was dismissed.
func (a *App) SaveJobOutput(jobID string) (string, error) {
	artifact, ok := a.Jobs.Output(jobID)
	if !ok {
		return "", fmt.Errorf("job %s has no converted output", jobID)
	}

	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}
	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save converted video",
		DefaultDirectory: a.outputDir(),
		DefaultFilename:  artifact.Name,
	})
	if err != nil || strings.TrimSpace(path) == "" {
		return "", err
	}

	return path, a.writeArtifact(ctx, path, artifact)
}

// ExportArchive bundles every converted file into one zip chosen with a
// save dialog. With nothing converted it does nothing.
func (a *App) ExportArchive() (string, error) {
	if len(a.Jobs.Outputs()) == 0 {
		return "", nil
	}

	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}
	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Export converted videos",
		DefaultDirectory: a.outputDir(),
		DefaultFilename:  "converted-videos.zip",
		Filters:          zipDialogFilter,
	})
	if err != nil || strings.TrimSpace(path) == "" {
		return "", err
	}

	return path, a.exportTo(ctx, path)
}

// exportTo writes the zip of all done outputs to path.
func (a *App) exportTo(ctx context.Context, path string) error {
	entries := lo.Map(a.Jobs.Outputs(), func(out domain.Artifact, _ int) archive.Entry {
		return archive.Entry{Name: out.Name, Data: out.Data}
	})

	saver := archive.FileSaver{Dir: filepath.Dir(path)}
	if err := archive.Export(ctx, saver, filepath.Base(path), entries); err != nil {
		return fmt.Errorf("export archive: %w", err)
	}
	a.logger().Info("archive exported", zap.String("path", path), zap.Int("files", len(entries)))
	return nil
}

func (a *App) writeArtifact(ctx context.Context, path string, artifact domain.Artifact) error {
	saver := archive.FileSaver{Dir: filepath.Dir(path)}
	if err := saver.Save(ctx, filepath.Base(path), bytes.NewReader(artifact.Data)); err != nil {
		return fmt.Errorf("save %s: %w", artifact.Name, err)
	}
	return nil
}

// PickOutputDirectory opens a native directory picker for converted files.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.outputDir()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(normalizeSettings(settings)), nil
}

func (a *App) rememberOptions(settings domain.Settings) {
	if a.Store == nil {
		return
	}
	if err := a.Store.Save(settings); err != nil {
		a.logger().Warn("remember options", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
}

func (a *App) batchActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// clearActiveRun drops the cancel handle of the run that owns done.
func (a *App) clearActiveRun(done chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runDone == done {
		a.cancel = nil
		a.runDone = nil
	}
}

func (a *App) outputDir() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings.OutputDir
}

func (a *App) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills unset options with defaults.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()

	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	settings.LogFormat = strings.ToLower(strings.TrimSpace(settings.LogFormat))
	if settings.LogFormat == "" {
		settings.LogFormat = defaults.LogFormat
	}
	if settings.Options.Format == "" {
		settings.Options.Format = defaults.Options.Format
	}
	if settings.Options.Resolution == "" {
		settings.Options.Resolution = defaults.Options.Resolution
	}
	if settings.Options.Bitrate == "" {
		settings.Options.Bitrate = defaults.Options.Bitrate
	}
	return settings
}

func appDir(homeDir string) string {
	return filepath.Join(homeDir, ".media-converter")
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
