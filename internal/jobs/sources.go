package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"

	"media-converter/internal/domain"
)

// videoExtensions is the fallback used when content sniffing is
// inconclusive, mirroring how file pickers classify by extension.
var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true,
	".avi": true, ".wmv": true, ".flv": true, ".mpg": true, ".mpeg": true,
	".3gp": true, ".ts": true, ".mts": true, ".ogv": true,
}

// Rejected is a selected path that did not become a job.
type Rejected struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// LoadSources reads the given paths and keeps the ones holding video.
// Unreadable or non-video files are returned as rejections.
func LoadSources(paths []string) ([]domain.Artifact, []Rejected) {
	return loadSources(paths, os.ReadFile)
}

func loadSources(paths []string, readFile func(string) ([]byte, error)) ([]domain.Artifact, []Rejected) {
	sources := make([]domain.Artifact, 0, len(paths))
	var rejected []Rejected

	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}

		data, err := readFile(path)
		if err != nil {
			rejected = append(rejected, Rejected{Path: path, Reason: fmt.Sprintf("cannot read file: %v", err)})
			continue
		}

		mimeType, ok := DetectVideo(filepath.Base(path), data)
		if !ok {
			rejected = append(rejected, Rejected{Path: path, Reason: "not a video file"})
			continue
		}

		sources = append(sources, domain.Artifact{
			Name:     filepath.Base(path),
			MIMEType: mimeType,
			Size:     int64(len(data)),
			Data:     data,
		})
	}
	return sources, rejected
}

// DetectVideo reports whether content (or, failing that, the file name)
// identifies a video, returning the detected media type.
func DetectVideo(name string, data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return m.String(), true
		}
	}

	if videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return "video/" + strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."), true
	}
	return "", false
}
