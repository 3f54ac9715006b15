package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	calls int
	name  string
	data  []byte
	err   error
}

func (s *recordingSaver) Save(_ context.Context, name string, r io.Reader) error {
	s.calls++
	s.name = name
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.data = data
	return s.err
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = body
	}
	return out
}

func TestExportEmptyIsNoop(t *testing.T) {
	saver := &recordingSaver{}
	require.NoError(t, Export(context.Background(), saver, "bundle.zip", nil))
	assert.Equal(t, 0, saver.calls)
}

func TestExportRoundTrip(t *testing.T) {
	saver := &recordingSaver{}
	entries := []Entry{
		{Name: "a.mp4", Data: []byte("first file")},
		{Name: "b.webm", Data: bytes.Repeat([]byte{0, 1, 2, 3}, 1024)},
	}

	require.NoError(t, Export(context.Background(), saver, "converted.zip", entries))
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, "converted.zip", saver.name)

	files := readZip(t, saver.data)
	require.Len(t, files, 2)
	assert.Equal(t, entries[0].Data, files["a.mp4"])
	assert.Equal(t, entries[1].Data, files["b.webm"])
}

func TestExportWrapsSaverError(t *testing.T) {
	boom := errors.New("disk full")
	saver := &recordingSaver{err: boom}

	err := Export(context.Background(), saver, "x.zip", []Entry{{Name: "a.mp4", Data: []byte("a")}})
	assert.ErrorIs(t, err, boom)
}

func TestBuildDeduplicatesNames(t *testing.T) {
	data, err := Build([]Entry{
		{Name: "clip.mp4", Data: []byte("1")},
		{Name: "clip.mp4", Data: []byte("2")},
		{Name: "clip.mp4", Data: []byte("3")},
		{Name: "dir/other.mp4", Data: []byte("4")},
	})
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Equal(t, []byte("1"), files["clip.mp4"])
	assert.Equal(t, []byte("2"), files["clip (1).mp4"])
	assert.Equal(t, []byte("3"), files["clip (2).mp4"])
	assert.Equal(t, []byte("4"), files["other.mp4"])
}

func TestFileSaverWritesAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	saver := FileSaver{Dir: dir}

	require.NoError(t, saver.Save(context.Background(), "bundle.zip", bytes.NewReader([]byte("zip bytes"))))

	got, err := os.ReadFile(filepath.Join(dir, "bundle.zip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("zip bytes"), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileSaverRemovesTempOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := FileSaver{Dir: dir}.Save(ctx, "bundle.zip", bytes.NewReader([]byte("data")))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
