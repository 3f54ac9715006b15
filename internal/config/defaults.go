package config

import (
	"os"
	"path/filepath"

	"media-converter/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir: filepath.Join(homeDir, "Videos", "Converted"),
		Options:   DefaultOptions(),
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// DefaultOptions is the conversion preset shown before the user picks one.
func DefaultOptions() domain.Options {
	return domain.Options{
		Format:     domain.FormatMP4,
		Resolution: domain.ResolutionSource,
		Bitrate:    domain.BitrateAuto,
	}
}

// DefaultPath is where the desktop app keeps its settings file.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".media-converter", "settings.yaml")
}
