package domain

import (
	"fmt"
	"math"
)

// JobStatus tracks where a single conversion job is in its lifecycle.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Format selects the output container and its fixed codec profile.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
)

// Resolution caps the output height. Sources below the cap are not upscaled.
type Resolution string

const (
	ResolutionSource Resolution = "source"
	Resolution720    Resolution = "720p"
	Resolution1080   Resolution = "1080p"
)

// Height returns the cap in pixels, or 0 when the source size is kept.
func (r Resolution) Height() int {
	switch r {
	case Resolution720:
		return 720
	case Resolution1080:
		return 1080
	default:
		return 0
	}
}

// Bitrate is the target video bitrate in ffmpeg notation.
type Bitrate string

const (
	BitrateAuto  Bitrate = "auto"
	Bitrate1M    Bitrate = "1M"
	Bitrate2500K Bitrate = "2.5M"
	Bitrate5M    Bitrate = "5M"
)

// Options is the batch-wide conversion configuration. It is a plain value so
// a run can snapshot it by copy.
type Options struct {
	Format     Format     `json:"format" yaml:"format"`
	Resolution Resolution `json:"resolution" yaml:"resolution"`
	Bitrate    Bitrate    `json:"bitrate" yaml:"bitrate"`
	TrimStart  float64    `json:"trimStart,omitempty" yaml:"trim_start,omitempty"`
	TrimEnd    float64    `json:"trimEnd,omitempty" yaml:"trim_end,omitempty"`
}

// Validate checks enum membership and trim bounds.
func (o Options) Validate() error {
	switch o.Format {
	case FormatMP4, FormatWebM:
	default:
		return fmt.Errorf("unsupported format: %q", o.Format)
	}
	switch o.Resolution {
	case ResolutionSource, Resolution720, Resolution1080:
	default:
		return fmt.Errorf("unsupported resolution: %q", o.Resolution)
	}
	switch o.Bitrate {
	case BitrateAuto, Bitrate1M, Bitrate2500K, Bitrate5M:
	default:
		return fmt.Errorf("unsupported bitrate: %q", o.Bitrate)
	}
	if o.TrimStart < 0 || math.IsNaN(o.TrimStart) || math.IsInf(o.TrimStart, 0) {
		return fmt.Errorf("trim start must be a non-negative number of seconds")
	}
	if o.TrimEnd < 0 || math.IsNaN(o.TrimEnd) || math.IsInf(o.TrimEnd, 0) {
		return fmt.Errorf("trim end must be a non-negative number of seconds")
	}
	return nil
}

// Artifact is a named blob: either selected source bytes or engine output.
type Artifact struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// Job is one file's conversion request and its tracked state.
type Job struct {
	ID         string    `json:"id"`
	SourceName string    `json:"sourceName"`
	SourceSize int64     `json:"sourceSize"`
	OutputName string    `json:"outputName"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Output     *Artifact `json:"output,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir string  `json:"outputDir" yaml:"output_dir"`
	Options   Options `json:"options" yaml:"options"`
	LogLevel  string  `json:"logLevel" yaml:"log_level"`
	LogFormat string  `json:"logFormat" yaml:"log_format"`
}
