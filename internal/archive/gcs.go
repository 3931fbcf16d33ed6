package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

const (
	pdfContentType = "application/pdf"
	uploadTimeout  = 50 * time.Second
)

// digestKey is the object metadata entry holding the SHA-256 of the artifact.
const digestKey = "sha256"

// objectWriter opens a writer for one object that must not exist yet.
type objectWriter func(ctx context.Context, object, digest string) io.WriteCloser

// objectDigest reads the digest recorded on an existing object.
type objectDigest func(ctx context.Context, object string) (string, error)

// GCSSink uploads artifacts to a Cloud Storage bucket. Objects are written
// once; storing an existing object is treated as already archived only when
// its recorded digest matches the artifact.
type GCSSink struct {
	bucket string
	prefix string
	client *storage.Client
	open   objectWriter
	stat   objectDigest
}

// NewGCSSink connects to bucket with the default credentials.
func NewGCSSink(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSSink, error) {
	if bucket == "" {
		return nil, types.NewDocError(types.ErrConfig, "archive bucket not set", nil)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, types.NewDocError(types.ErrArchive, "failed to create storage client", err)
	}

	handle := client.Bucket(bucket)
	s := &GCSSink{bucket: bucket, prefix: prefix, client: client}
	s.open = func(ctx context.Context, object, digest string) io.WriteCloser {
		w := handle.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = pdfContentType
		w.Metadata = map[string]string{digestKey: digest}
		return w
	}
	s.stat = func(ctx context.Context, object string) (string, error) {
		attrs, err := handle.Object(object).Attrs(ctx)
		if err != nil {
			return "", err
		}
		return attrs.Metadata[digestKey], nil
	}
	return s, nil
}

// Store uploads data as prefix/reference/name.
func (s *GCSSink) Store(ctx context.Context, reference, name string, data []byte) (string, error) {
	key, err := Key(reference, name)
	if err != nil {
		return "", err
	}
	object := path.Join(s.prefix, key)
	location := fmt.Sprintf("gs://%s/%s", s.bucket, object)
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	writeCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.open(writeCtx, object, digest)
	_, err = io.Copy(w, bytes.NewReader(data))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if alreadyExists(err) {
			return s.existing(writeCtx, object, location, digest)
		}
		return "", types.NewDocError(types.ErrArchive, "failed to upload artifact", err)
	}

	logger.Info("artifact archived", logger.String("object", location), logger.Int("bytes", len(data)))
	return location, nil
}

// existing accepts an object that is already there when it holds the same bytes.
func (s *GCSSink) existing(ctx context.Context, object, location, digest string) (string, error) {
	found, err := s.stat(ctx, object)
	if err != nil {
		return "", types.NewDocError(types.ErrArchive, "failed to inspect existing artifact", err)
	}
	if found != digest {
		return "", types.NewDocErrorWithDetails(types.ErrArchive,
			"a different artifact is archived under this reference", location, nil)
	}
	logger.Info("artifact already archived", logger.String("object", location))
	return location, nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
