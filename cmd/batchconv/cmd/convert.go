package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"media-converter/internal/archive"
	"media-converter/internal/domain"
	"media-converter/internal/engine"
	"media-converter/internal/jobs"
	"media-converter/internal/metrics"
)

var (
	zipPath     string
	metricsFile string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Convert video files with the configured options",
	Long: `Convert every given video file in order. A file that fails does not stop
the batch. Converted files are written to the output directory and can
additionally be bundled into a zip archive.`,
	Example: `  batchconv convert a.mov b.mov --format mp4 --resolution 720p --trim-start 2 --trim-end 8
  batchconv convert *.mkv --format webm --zip converted.zip`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	flags := convertCmd.Flags()
	flags.String("format", "", "output container: mp4 or webm")
	flags.String("resolution", "", "maximum height: source, 720p or 1080p")
	flags.String("bitrate", "", "video bitrate: auto, 1M, 2.5M or 5M")
	flags.Float64("trim-start", 0, "seconds to skip at the start")
	flags.Float64("trim-end", 0, "stop at this many seconds into the source (0 keeps the rest)")
	flags.String("out", "", "directory converted files are written to")
	flags.StringVar(&zipPath, "zip", "", "also bundle every converted file into this zip archive")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")

	_ = viper.BindPFlag("options.format", flags.Lookup("format"))
	_ = viper.BindPFlag("options.resolution", flags.Lookup("resolution"))
	_ = viper.BindPFlag("options.bitrate", flags.Lookup("bitrate"))
	_ = viper.BindPFlag("options.trim_start", flags.Lookup("trim-start"))
	_ = viper.BindPFlag("options.trim_end", flags.Lookup("trim-end"))
	_ = viper.BindPFlag("output_dir", flags.Lookup("out"))
}

func runConvert(cmd *cobra.Command, args []string) error {
	settings := currentSettings()
	opts := settings.Options
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	log, err := newLogger(settings)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sources, rejected := jobs.LoadSources(args)
	for _, r := range rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %s\n", r.Path, r.Reason)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no video files to convert")
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)
	engines := engine.NewManager(engine.NewFFmpegLoader(viper.GetString("ffmpeg"), ""), log.Named("engine"), rec)
	defer func() {
		if err := engines.Close(); err != nil {
			log.Warn("release engine", zap.Error(err))
		}
	}()

	manager := jobs.NewManager(jobs.NewEventBus(0))
	manager.Reset(sources, opts.Format)
	orch := jobs.NewOrchestrator(engines, manager, log.Named("batch"), rec)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, unsubscribe := manager.Events().Subscribe(256)
	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		printProgress(cmd.ErrOrStderr(), manager, events)
	}()

	summary, runErr := orch.Run(ctx, opts)
	unsubscribe()
	printer.Wait()

	// Keep what was converted even when the batch was interrupted.
	saveCtx := context.WithoutCancel(ctx)
	written, err := writeOutputs(saveCtx, settings.OutputDir, manager.Outputs(), args)
	for _, path := range written {
		fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", path)
	}
	if err != nil {
		return err
	}
	if zipPath != "" {
		if err := exportZip(saveCtx, zipPath, manager.Outputs()); err != nil {
			return err
		}
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
			log.Warn("write metrics file", zap.String("path", metricsFile), zap.Error(err))
		}
	}

	if err := printSummary(cmd.OutOrStdout(), manager.Jobs(), summary); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", summary.Failed, summary.Total)
	}
	return nil
}

// printProgress writes one line per status change and every tenth percent.
func printProgress(w io.Writer, manager *jobs.Manager, events <-chan jobs.Event) {
	last := map[string]int{}
	for event := range events {
		name := event.JobID
		if job, ok := manager.Get(event.JobID); ok {
			name = job.SourceName
		}

		switch event.Type {
		case jobs.EventTypeProgress:
			if event.Progress/10 == last[event.JobID]/10 {
				continue
			}
			last[event.JobID] = event.Progress
			fmt.Fprintf(w, "  %-32s %3d%%\n", name, event.Progress)
		case jobs.EventTypeStatus:
			fmt.Fprintf(w, "%s: %s\n", name, event.Status)
		case jobs.EventTypeError:
			if event.JobID != "" {
				fmt.Fprintf(w, "%s: %s\n", name, event.Message)
			}
		case jobs.EventTypeRun:
			fmt.Fprintln(w, event.Message)
		}
	}
}

// writeOutputs saves every artifact into dir and returns the written paths.
// A name that would replace one of the inputs or an earlier output of the
// batch gets a " (n)" suffix.
func writeOutputs(ctx context.Context, dir string, outputs []domain.Artifact, inputs []string) ([]string, error) {
	if len(outputs) == 0 {
		return nil, nil
	}

	inputFiles := lo.FilterMap(inputs, func(path string, _ int) (os.FileInfo, bool) {
		info, err := os.Stat(path)
		return info, err == nil
	})
	isInput := func(path string) bool {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		return lo.ContainsBy(inputFiles, func(in os.FileInfo) bool { return os.SameFile(in, info) })
	}

	used := make(map[string]bool, len(outputs))
	saver := archive.FileSaver{Dir: dir}
	written := make([]string, 0, len(outputs))
	for _, out := range outputs {
		name := archive.UniqueName(filepath.Base(out.Name), func(candidate string) bool {
			return used[strings.ToLower(candidate)] || isInput(filepath.Join(dir, candidate))
		})
		used[strings.ToLower(name)] = true

		if err := saver.Save(ctx, name, bytes.NewReader(out.Data)); err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, filepath.Join(dir, name))
	}
	return written, nil
}

func exportZip(ctx context.Context, path string, outputs []domain.Artifact) error {
	entries := lo.Map(outputs, func(out domain.Artifact, _ int) archive.Entry {
		return archive.Entry{Name: out.Name, Data: out.Data}
	})
	saver := archive.FileSaver{Dir: filepath.Dir(path)}
	return archive.Export(ctx, saver, filepath.Base(path), entries)
}

type summaryJSON struct {
	Summary jobs.RunSummary `json:"summary"`
	Jobs    []domain.Job    `json:"jobs"`
}

func printSummary(w io.Writer, list []domain.Job, summary jobs.RunSummary) error {
	if IsJSONOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaryJSON{Summary: summary, Jobs: list})
	}

	table := tablewriter.NewWriter(w)
	table.Header("Source", "Status", "Progress", "Output", "Error")
	for _, job := range list {
		output := "-"
		if job.Status == domain.JobStatusDone {
			output = job.OutputName
		}
		reason := job.Error
		if reason == "" {
			reason = "-"
		}
		_ = table.Append(job.SourceName, string(job.Status), fmt.Sprintf("%d%%", job.Progress), output, reason)
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d converted, %d failed, %d pending in %s\n",
		summary.Done, summary.Failed, summary.Pending, summary.Elapsed.Round(time.Millisecond))
	return nil
}
