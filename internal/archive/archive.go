// Package archive bundles converted files into a single zip download.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one named blob placed in the bundle.
type Entry struct {
	Name string
	Data []byte
}

// Saver delivers a finished bundle to its destination.
type Saver interface {
	Save(ctx context.Context, name string, r io.Reader) error
}

// Export zips entries and hands the bundle to saver. An empty entry list
// is a no-op and the saver is never called.
func Export(ctx context.Context, saver Saver, bundleName string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if saver == nil {
		return errors.New("archive: no saver")
	}

	data, err := Build(entries)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := saver.Save(ctx, bundleName, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save %s: %w", bundleName, err)
	}
	return nil
}

// Build returns the zip bytes for entries, in order. Names repeated in the
// list get a " (n)" suffix before the extension.
func Build(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := time.Now()

	names := uniqueNames(entries)
	for i, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", names[i], err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", names[i], err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueNames(entries []Entry) []string {
	seen := make(map[string]bool, len(entries))
	names := make([]string, len(entries))
	for i, entry := range entries {
		name := filepath.Base(strings.ReplaceAll(entry.Name, "\\", "/"))
		if name == "" || name == "." || name == "/" {
			name = "file"
		}

		candidate := UniqueName(name, func(c string) bool { return seen[c] })
		seen[candidate] = true
		names[i] = candidate
	}
	return names
}

// UniqueName returns name unchanged when taken reports false for it,
// otherwise the first "stem (n).ext" variant that is free.
func UniqueName(name string, taken func(string) bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; taken(candidate); n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	return candidate
}

// FileSaver writes bundles into Dir.
type FileSaver struct {
	Dir string
}

// Save writes r to Dir/name through a temporary file that is renamed into
// place, so a partial bundle never appears under the final name.
func (s FileSaver) Save(ctx context.Context, name string, r io.Reader) error {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid bundle name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.Dir, name)); err != nil {
		return err
	}
	committed = true
	return nil
}
