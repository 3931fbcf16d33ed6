// Package pdf turns a composed document into its final artifact: the PDF bytes,
// checked with pdfcpu, and a base64 text form for transports that only carry
// text (mail bodies, JSON).
package pdf

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"hrdocs/internal/layout"
	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

// Magic is the header every PDF starts with.
var Magic = []byte("%PDF-")

func init() {
	// pdfcpu would otherwise create a config directory under the user's home.
	api.DisableConfigDir()
}

// Artifact is a finished document.
type Artifact struct {
	Bytes        []byte
	PortableText string
	PageCount    int
	Digest       string
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	return len(a.Bytes)
}

// Encoder finalizes documents. It holds no per-call state and is safe for
// concurrent use: pdfcpu mutates its configuration while validating, so every
// call gets its own.
type Encoder struct {
	validate bool
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithoutValidation skips the pdfcpu structural check.
func WithoutValidation() EncoderOption {
	return func(e *Encoder) { e.validate = false }
}

// NewEncoder creates an Encoder using relaxed pdfcpu validation.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{validate: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Finalize renders doc, which must not have been finalized before, and returns
// the artifact. Any failure is an ENCODING_ERROR except a second call, which is
// DOCUMENT_FINALIZED.
func (e *Encoder) Finalize(doc *layout.Document) (*Artifact, error) {
	if doc == nil {
		return nil, types.NewDocError(types.ErrEncoding, "no document to finalize", nil)
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if !bytes.HasPrefix(data, Magic) {
		return nil, types.NewDocError(types.ErrEncoding, "rendered output is not a PDF", nil)
	}

	pages := doc.Page()
	if e.validate {
		if err := api.Validate(bytes.NewReader(data), relaxedConfig()); err != nil {
			return nil, types.NewDocError(types.ErrEncoding, "PDF failed validation", err)
		}
		n, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
		if err != nil {
			return nil, types.NewDocError(types.ErrEncoding, "failed to count pages", err)
		}
		if n != pages {
			return nil, types.NewDocErrorWithDetails(types.ErrEncoding, "page count mismatch",
				fmt.Sprintf("composed %d, encoded %d", pages, n), nil)
		}
	}

	sum := sha256.Sum256(data)
	artifact := &Artifact{
		Bytes:        data,
		PortableText: EncodePortable(data),
		PageCount:    pages,
		Digest:       hex.EncodeToString(sum[:]),
	}
	logger.Debug("document finalized",
		logger.Int("bytes", len(data)),
		logger.Int("pages", pages),
		logger.String("digest", artifact.Digest[:12]))
	return artifact, nil
}

// EncodePortable returns the text-safe form of data.
func EncodePortable(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePortable reverses EncodePortable. Line breaks inserted by mail
// transports are ignored.
func DecodePortable(text string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, text)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, types.NewDocError(types.ErrEncoding, "portable text is not valid base64", err)
	}
	return data, nil
}

// PageCount returns the number of pages of an encoded PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
	if err != nil {
		return 0, types.NewDocError(types.ErrEncoding, "failed to read page count", err)
	}
	return n, nil
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
