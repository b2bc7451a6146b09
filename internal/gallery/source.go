package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Blob is the raw serialized gallery as fetched from a source.
type Blob struct {
	Path string // remote path or file path; the suffix selects the decoder
	Data []byte
}

// Source fetches the latest serialized blob for a gallery.
type Source interface {
	Fetch(ctx context.Context, id ID) (Blob, error)
}

// Downloader is the part of the bucket client a BlobSource needs.
type Downloader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// BlobSource reads galleries from a remote storage bucket.
type BlobSource struct {
	client Downloader
	paths  map[ID]string
}

// NewBlobSource maps each gallery to a path inside the bucket.
func NewBlobSource(client Downloader, paths map[ID]string) *BlobSource {
	return &BlobSource{client: client, paths: paths}
}

func (s *BlobSource) Fetch(ctx context.Context, id ID) (Blob, error) {
	path, ok := s.paths[id]
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", ErrUnknownGallery, id)
	}
	data, err := s.client.Download(ctx, path)
	if err != nil {
		return Blob{}, fmt.Errorf("download %s: %w", path, err)
	}
	return Blob{Path: path, Data: data}, nil
}

// FileSource reads galleries from a local directory, using the base name of each
// configured path. A mirror directory written by the store is a valid FileSource.
type FileSource struct {
	dir   string
	paths map[ID]string
}

func NewFileSource(dir string, paths map[ID]string) *FileSource {
	return &FileSource{dir: dir, paths: paths}
}

// Path returns the local file backing a gallery.
func (s *FileSource) Path(id ID) (string, bool) {
	p, ok := s.paths[id]
	if !ok {
		return "", false
	}
	return filepath.Join(s.dir, filepath.Base(p)), true
}

func (s *FileSource) Fetch(ctx context.Context, id ID) (Blob, error) {
	path, ok := s.Path(id)
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", ErrUnknownGallery, id)
	}
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Blob{Path: path, Data: data}, nil
}
