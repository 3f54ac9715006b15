package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"media-converter/internal/config"
	"media-converter/internal/domain"
	"media-converter/internal/logging"
)

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "batchconv",
	Short: "Convert batches of local videos to MP4 or WebM",
	Long: `batchconv converts a list of local video files one after another with a
shared set of options (container, maximum height, bitrate and trim window).
It reads the same settings file as the desktop app.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is $HOME/.media-converter/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "log encoding: console or json")
	rootCmd.PersistentFlags().String("ffmpeg", "ffmpeg", "ffmpeg binary name or path")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("ffmpeg", rootCmd.PersistentFlags().Lookup("ffmpeg"))
}

// initConfig reads the settings file and BATCHCONV_* environment variables.
func initConfig() {
	defaults := config.DefaultSettings()
	viper.SetDefault("output_dir", defaults.OutputDir)
	viper.SetDefault("log_level", defaults.LogLevel)
	viper.SetDefault("log_format", defaults.LogFormat)
	viper.SetDefault("options.format", string(defaults.Options.Format))
	viper.SetDefault("options.resolution", string(defaults.Options.Resolution))
	viper.SetDefault("options.bitrate", string(defaults.Options.Bitrate))
	viper.SetDefault("options.trim_start", 0.0)
	viper.SetDefault("options.trim_end", 0.0)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile(config.DefaultPath())
	}
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("BATCHCONV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: ignoring settings file: %v\n", err)
		}
	}
}

// currentSettings resolves settings from flags, environment, file and defaults.
func currentSettings() domain.Settings {
	return domain.Settings{
		OutputDir: viper.GetString("output_dir"),
		Options: domain.Options{
			Format:     domain.Format(strings.ToLower(viper.GetString("options.format"))),
			Resolution: domain.Resolution(strings.ToLower(viper.GetString("options.resolution"))),
			Bitrate:    domain.Bitrate(viper.GetString("options.bitrate")),
			TrimStart:  viper.GetFloat64("options.trim_start"),
			TrimEnd:    viper.GetFloat64("options.trim_end"),
		},
		LogLevel:  viper.GetString("log_level"),
		LogFormat: viper.GetString("log_format"),
	}
}

func newLogger(settings domain.Settings) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: settings.LogLevel, Format: settings.LogFormat})
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
