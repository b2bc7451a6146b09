package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/sentinel-home/internal/config"
	"github.com/andresmejia3/sentinel-home/internal/engine"
	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecJSON(v float64) string {
	parts := make([]string, types.EmbeddingDim)
	for i := range parts {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestReadFaces(t *testing.T) {
	input := fmt.Sprintf(`{"loc":[10,60,70,5],"vec":%s,"ts":"2026-03-14T18:30:00Z","frame":"f1.jpg"}

{"loc":[0,1,1,0],"vec":%s,"ts":"2026-03-14T18:30:01Z"}
`, vecJSON(0.1), vecJSON(0.2))

	faces, err := readFaces(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, []int{10, 60, 70, 5}, faces[0].Loc)
	assert.Equal(t, "f1.jpg", faces[0].Frame)
	assert.Equal(t, 30, faces[0].TS.Minute())
	assert.Empty(t, faces[1].Frame)
}

func TestReadFaces_Errors(t *testing.T) {
	_, err := readFaces(strings.NewReader(`{"loc":[0,1,1,0],"vec":[1,2,3]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = readFaces(strings.NewReader("\n{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, describe(engine.Announce{Text: "Welcome home, Alice"}), `"Welcome home, Alice"`)
	assert.Contains(t, describe(engine.RaiseAlert{AlertType: "criminal_detected", Message: "Bob detected"}), "criminal_detected: Bob detected")
	assert.Contains(t, describe(engine.LogVisit{Classification: "unknown", Notes: "Photo captured"}), "- ")

	capture := describe(engine.Capture{Key: "unknown#1", FilenameHint: "unknown_1.jpg", Visit: engine.LogVisit{Classification: "unknown"}})
	assert.Contains(t, capture, "unknown_1.jpg")
	assert.Contains(t, capture, "(unknown)")
}

func TestLargestFace(t *testing.T) {
	faces := []types.DetectedFace{
		{Box: types.Box{Top: 0, Right: 10, Bottom: 10, Left: 0}},
		{Box: types.Box{Top: 0, Right: 40, Bottom: 30, Left: 10}},
		{Box: types.Box{Top: 5, Right: 1, Bottom: 1, Left: 5}}, // inverted
	}
	assert.Equal(t, faces[1].Box, largestFace(faces).Box)
	assert.Equal(t, faces[0].Box, largestFace(faces[:1]).Box)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bob.JPG", "alice.jpg", "notes.txt", "carol.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	files, err := listImages(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, personName(f))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	_, err = listImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "family_encodings.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	clearDir(dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	clearDir(filepath.Join(dir, "missing"))
	clearDir("")
}

func TestNewGalleryStore_MirrorOnlyWhenAsked(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	galleryDir := t.TempDir()
	blob := fmt.Sprintf(`{"encodings":[%s],"names":["Alice"]}`, vecJSON(0.1))
	require.NoError(t, os.WriteFile(filepath.Join(galleryDir, "family_encodings.json"), []byte(blob), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, mirror := range []bool{false, true} {
		cfg = config.Load()
		cfg.Storage.URL = ""
		cfg.Gallery.Dir = galleryDir
		cfg.Gallery.FamilyPath = "encodings/family_encodings.json"
		cfg.Gallery.MirrorDir = t.TempDir()

		galleries, watched, err := newGalleryStore(logger, mirror)
		require.NoError(t, err)
		assert.Len(t, watched, 2)

		// The criminal file is absent, so only the family gallery refreshes.
		_ = galleries.RefreshAll(context.Background())
		assert.Equal(t, 1, galleries.Read(gallery.Family).Len())

		entries, err := os.ReadDir(cfg.Gallery.MirrorDir)
		require.NoError(t, err)
		if mirror {
			assert.Len(t, entries, 1, "watch keeps a mirror")
		} else {
			assert.Empty(t, entries, "one-shot commands must not write the mirror")
		}
	}
}
