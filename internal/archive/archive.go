// Package archive copies finished artifacts to long-term storage. Sinks are
// only called after a document has been finalized.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

// Archive kinds accepted in configuration.
const (
	KindNone = ""
	KindDir  = "dir"
	KindGCS  = "gcs"
)

// Sink stores one artifact and returns where it went. Artifacts are keyed by
// document reference: several documents share a file name (every work
// certificate is attestation_de_travail.pdf), never a reference.
type Sink interface {
	Store(ctx context.Context, reference, name string, data []byte) (string, error)
	Close() error
}

// Key returns the storage key of an artifact, reference/name, with both parts
// reduced to plain path elements.
func Key(reference, name string) (string, error) {
	ref, err := cleanName(reference)
	if err != nil {
		return "", err
	}
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return ref + "/" + base, nil
}

// New opens the sink selected by cfg. KindNone yields a nil Sink.
func New(ctx context.Context, cfg types.ArchiveConfig) (Sink, error) {
	switch cfg.Kind {
	case KindNone:
		return nil, nil
	case KindDir:
		return NewDirSink(cfg.Directory)
	case KindGCS:
		return NewGCSSink(ctx, cfg.Bucket, cfg.Prefix)
	}
	return nil, types.NewDocErrorWithDetails(types.ErrConfig, "unknown archive kind", cfg.Kind, nil)
}

// DirSink writes artifacts into a local directory.
type DirSink struct {
	dir string
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if dir == "" {
		return nil, types.NewDocError(types.ErrConfig, "archive directory not set", nil)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, types.NewDocError(types.ErrArchive, "failed to create archive directory", err)
	}
	return &DirSink{dir: dir}, nil
}

// Store writes data to dir/reference/name through a temporary file so a reader
// never sees a partial artifact.
func (s *DirSink) Store(ctx context.Context, reference, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", types.NewDocError(types.ErrArchive, "archive cancelled", err)
	}
	key, err := Key(reference, name)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", types.NewDocError(types.ErrArchive, "failed to create archive directory", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return "", types.NewDocError(types.ErrArchive, "failed to create archive file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", types.NewDocError(types.ErrArchive, "failed to write archive file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", types.NewDocError(types.ErrArchive, "failed to write archive file", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", types.NewDocError(types.ErrArchive, "failed to move archive file", err)
	}

	logger.Info("artifact archived", logger.String("path", target), logger.Int("bytes", len(data)))
	return target, nil
}

// Close is a no-op.
func (s *DirSink) Close() error {
	return nil
}

// cleanName keeps only the base name of one key element.
func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" || strings.HasPrefix(base, "..") {
		return "", types.NewDocErrorWithDetails(types.ErrArchive, "invalid artifact name", name, nil)
	}
	return base, nil
}
