// Package fonts loads the font used for the Arabic column and registers it with
// each document build. A font that cannot be parsed or lacks the required glyphs
// is a fatal error: there is no fallback font.
package fonts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/sync/singleflight"

	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

// DefaultFamily is the family name under which the Arabic font is registered in a PDF.
const DefaultFamily = "arabic"

// RegisteredFont is a parsed font payload shared read-only by every build.
type RegisteredFont struct {
	AssetID   string
	Family    string
	Name      string
	NumGlyphs int
	Digest    string

	data []byte
	font *sfnt.Font
}

// Bytes returns the raw font payload. Callers must not modify it.
func (f *RegisteredFont) Bytes() []byte {
	return f.data
}

// Covers reports whether the font has a glyph for r.
func (f *RegisteredFont) Covers(r rune) bool {
	var buf sfnt.Buffer
	idx, err := f.font.GlyphIndex(&buf, r)
	return err == nil && idx != 0
}

// Missing returns the runes of text the font has no glyph for, each once.
func (f *RegisteredFont) Missing(text string) []rune {
	var (
		buf     sfnt.Buffer
		missing []rune
		seen    = make(map[rune]bool)
	)
	for _, r := range text {
		if seen[r] || r == ' ' {
			continue
		}
		seen[r] = true
		idx, err := f.font.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			missing = append(missing, r)
		}
	}
	return missing
}

// Register adds the font to one build's PDF under f.Family.
func (f *RegisteredFont) Register(pdf *fpdf.Fpdf) error {
	pdf.AddUTF8FontFromBytes(f.Family, "", f.data)
	if err := pdf.Error(); err != nil {
		return types.NewDocErrorWithDetails(types.ErrFontRegistration,
			"failed to register font with document", f.AssetID, err)
	}
	return nil
}

// Loader reads and validates font assets and caches them for the life of the
// process. Concurrent first loads of the same asset share one read.
type Loader struct {
	family        string
	requiredRunes string
	readFile      func(string) ([]byte, error)

	mu    sync.RWMutex
	cache map[string]*RegisteredFont
	group singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithRequiredRunes makes Load fail unless the font covers every rune of s.
func WithRequiredRunes(s string) Option {
	return func(l *Loader) { l.requiredRunes = s }
}

// WithFamily overrides the PDF family name.
func WithFamily(family string) Option {
	return func(l *Loader) { l.family = family }
}

// WithReadFile replaces os.ReadFile, mainly for tests.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(l *Loader) { l.readFile = fn }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		family:   DefaultFamily,
		readFile: os.ReadFile,
		cache:    make(map[string]*RegisteredFont),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the font at assetID (a file path), reading it on first use.
func (l *Loader) Load(assetID string) (*RegisteredFont, error) {
	if f, ok := l.cached(assetID); ok {
		return f, nil
	}

	v, err, shared := l.group.Do(assetID, func() (interface{}, error) {
		if f, ok := l.cached(assetID); ok {
			return f, nil
		}
		data, err := l.readFile(assetID)
		if err != nil {
			return nil, types.NewDocErrorWithDetails(types.ErrFontRegistration,
				"failed to read font asset", assetID, err)
		}
		return l.store(assetID, data)
	})
	if err != nil {
		logger.Error("font load failed", err, logger.String("asset", assetID))
		return nil, err
	}
	if shared {
		logger.Debug("font load shared with concurrent caller", logger.String("asset", assetID))
	}
	return v.(*RegisteredFont), nil
}

// LoadBytes registers an in-memory payload under assetID.
func (l *Loader) LoadBytes(assetID string, data []byte) (*RegisteredFont, error) {
	if f, ok := l.cached(assetID); ok {
		return f, nil
	}
	v, err, _ := l.group.Do(assetID, func() (interface{}, error) {
		return l.store(assetID, data)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RegisteredFont), nil
}

// Cached returns how many fonts are held.
func (l *Loader) Cached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

func (l *Loader) cached(assetID string) (*RegisteredFont, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.cache[assetID]
	return f, ok
}

func (l *Loader) store(assetID string, data []byte) (*RegisteredFont, error) {
	f, err := parse(assetID, l.family, data)
	if err != nil {
		return nil, err
	}
	if missing := f.Missing(l.requiredRunes); len(missing) > 0 {
		return nil, types.NewDocErrorWithDetails(types.ErrFontRegistration,
			"font does not cover required characters", fmt.Sprintf("%s: %q", assetID, string(missing)), nil)
	}

	l.mu.Lock()
	l.cache[assetID] = f
	l.mu.Unlock()

	logger.Info("font loaded",
		logger.String("asset", assetID),
		logger.String("name", f.Name),
		logger.Int("glyphs", f.NumGlyphs),
		logger.String("digest", f.Digest[:12]))
	return f, nil
}

func parse(assetID, family string, data []byte) (*RegisteredFont, error) {
	if len(data) == 0 {
		return nil, types.NewDocErrorWithDetails(types.ErrFontRegistration, "font asset is empty", assetID, nil)
	}
	payload := make([]byte, len(data))
	copy(payload, data)

	parsed, err := sfnt.Parse(payload)
	if err != nil {
		return nil, types.NewDocErrorWithDetails(types.ErrFontRegistration, "font asset is not a valid TrueType/OpenType font", assetID, err)
	}
	if parsed.NumGlyphs() == 0 {
		return nil, types.NewDocErrorWithDetails(types.ErrFontRegistration, "font has no glyphs", assetID, nil)
	}

	var buf sfnt.Buffer
	name, err := parsed.Name(&buf, sfnt.NameIDFamily)
	if err != nil {
		name = ""
	}

	sum := sha256.Sum256(payload)
	return &RegisteredFont{
		AssetID:   assetID,
		Family:    family,
		Name:      name,
		NumGlyphs: parsed.NumGlyphs(),
		Digest:    hex.EncodeToString(sum[:]),
		data:      payload,
		font:      parsed,
	}, nil
}
