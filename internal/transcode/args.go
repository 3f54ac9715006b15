// Package transcode maps conversion options to the ffmpeg argument
// sequence and derives the file names used inside the engine workspace.
package transcode

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"media-converter/internal/domain"
)

// profile is the fixed codec selection for one container.
type profile struct {
	videoCodec   string
	pixelFormat  string
	audioCodec   string
	audioBitrate string
	extension    string
	mimeType     string
}

var profiles = map[domain.Format]profile{
	domain.FormatMP4: {
		videoCodec:   "libx264",
		pixelFormat:  "yuv420p",
		audioCodec:   "aac",
		audioBitrate: "128k",
		extension:    "mp4",
		mimeType:     "video/mp4",
	},
	domain.FormatWebM: {
		videoCodec:   "libvpx-vp9",
		pixelFormat:  "yuv420p",
		audioCodec:   "libopus",
		audioBitrate: "96k",
		extension:    "webm",
		mimeType:     "video/webm",
	},
}

// profileFor panics on an unknown format; options are validated before
// they reach the builder.
func profileFor(format domain.Format) profile {
	p, ok := profiles[format]
	if !ok {
		panic(fmt.Sprintf("transcode: unsupported format %q", format))
	}
	return p
}

// Build returns the ffmpeg arguments converting inputID into outputID.
// Seek must precede the input declaration; everything else follows it.
func Build(inputID, outputID string, opts domain.Options) []string {
	p := profileFor(opts.Format)
	args := make([]string, 0, 24)

	args = append(args, "-y")

	if opts.TrimStart > 0 {
		args = append(args, "-ss", formatSeconds(opts.TrimStart))
	}

	args = append(args, "-i", inputID)

	// An end at or before the start silently disables trimming.
	if opts.TrimEnd > opts.TrimStart {
		args = append(args, "-t", formatSeconds(opts.TrimEnd-opts.TrimStart))
	}

	args = append(args, "-c:v", p.videoCodec, "-pix_fmt", p.pixelFormat)

	if opts.Bitrate != domain.BitrateAuto && opts.Bitrate != "" {
		args = append(args, "-b:v", string(opts.Bitrate))
	}

	if height := opts.Resolution.Height(); height > 0 {
		args = append(args, "-vf", scaleFilter(height))
	}

	args = append(args, "-c:a", p.audioCodec, "-b:a", p.audioBitrate)

	args = append(args, outputID)
	return args
}

// scaleFilter downsizes only when the source is taller than the cap, keeps
// the aspect ratio and rounds both dimensions to even values.
func scaleFilter(height int) string {
	return fmt.Sprintf("scale=-2:'trunc(min(%d,ih)/2)*2'", height)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Extension returns the file extension (without dot) for a format.
func Extension(format domain.Format) string {
	return profileFor(format).extension
}

// MIMEType returns the media type of files produced for a format.
func MIMEType(format domain.Format) string {
	return profileFor(format).mimeType
}

// OutputName builds the downloadable name: source base name with the
// container extension.
func OutputName(sourceName string, format domain.Format) string {
	return baseName(sourceName) + "." + Extension(format)
}

// InputName builds the workspace entry name for a source file. The prefix
// keeps it distinct from an output of the same name.
func InputName(sourceName string) string {
	base := filepath.Base(sourceName)
	ext := filepath.Ext(base)
	name := "input-" + sanitize(strings.TrimSuffix(base, ext))
	if ext != "" {
		name += sanitize(strings.ToLower(ext))
	}
	return name
}

// WorkspaceOutputName is the workspace entry the engine writes to.
func WorkspaceOutputName(sourceName string, format domain.Format) string {
	return "output-" + sanitize(baseName(sourceName)) + "." + Extension(format)
}

func baseName(sourceName string) string {
	base := filepath.Base(strings.TrimSpace(sourceName))
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "video"
	}
	return name
}

// sanitize keeps workspace names to a conservative character set so they
// never parse as ffmpeg options or protocol URLs.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "video"
	}
	return b.String()
}
