package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Source is a readable tabular data origin. Open may be called more than
// once: re-invoking a load re-reads the source from the start.
type Source interface {
	// Locator identifies the source for logs and error messages.
	// It plays no part in cache identity; content digests do.
	Locator() string
	// Open returns a fresh reader positioned at the start of the source.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SizedSource is implemented by sources whose total byte size is known
// without reading them. Used by Info to estimate full-load cost.
type SizedSource interface {
	Source
	Size(ctx context.Context) (int64, error)
}

// FileSource reads a local file.
type FileSource struct {
	Path string
}

// NewFileSource creates a source for a local path.
func NewFileSource(path string) *FileSource { return &FileSource{Path: path} }

func (s *FileSource) Locator() string { return s.Path }

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &SourceUnavailableError{Locator: s.Path, Err: err}
	}
	return f, nil
}

func (s *FileSource) Size(ctx context.Context) (int64, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0, &SourceUnavailableError{Locator: s.Path, Err: err}
	}
	return info.Size(), nil
}

// UploadSource wraps bytes received through an upload form. Each upload
// gets a uuid-tagged locator so two uploads of the same filename stay
// distinguishable in logs; cache identity still comes from content.
type UploadSource struct {
	locator string
	data    []byte
}

// NewUploadSource registers uploaded bytes under a fresh upload id.
func NewUploadSource(filename string, data []byte) *UploadSource {
	return &UploadSource{
		locator: fmt.Sprintf("upload://%s/%s", uuid.NewString(), filename),
		data:    data,
	}
}

func (s *UploadSource) Locator() string { return s.locator }

func (s *UploadSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *UploadSource) Size(ctx context.Context) (int64, error) {
	return int64(len(s.data)), nil
}
