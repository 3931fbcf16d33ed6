// Package generator is the entry point of the engine: it turns a document kind
// and its form data into a finished PDF artifact.
package generator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hrdocs/internal/archive"
	"hrdocs/internal/assets"
	failures "hrdocs/internal/errors"
	"hrdocs/internal/fonts"
	"hrdocs/internal/layout"
	"hrdocs/internal/logger"
	"hrdocs/internal/pdf"
	"hrdocs/internal/results"
	"hrdocs/internal/templates"
	"hrdocs/internal/translator"
	"hrdocs/internal/types"
	"hrdocs/internal/validator"
)

const producer = "hrdocs"

// referenceNamespace scopes the name-based document references.
var referenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:hrdocs:document"))

// Result is a generated document.
type Result struct {
	Bytes             []byte
	PortableText      string
	SuggestedFilename string
	Kind              string
	PageCount         int
	Reference         string
	Digest            string
	Matricule         string
	IssuedAt          time.Time
	Untranslated      []string // values printed as is in the Arabic column
	ArchivedAt        string   // archive location, empty without a sink
	ArchiveError      error    // non-fatal archive failure
	RegisterError     error    // non-fatal register failure
}

// Generator builds documents. It is safe for concurrent use: every call owns
// its composer and only the font cache is shared.
type Generator struct {
	cfg        *types.Config
	registry   *templates.Registry
	fonts      *fonts.Loader
	fontID     string
	fontData   []byte
	logo       *assets.Image
	logoSet    bool
	encoder    *pdf.Encoder
	translator *translator.Translator
	sink       archive.Sink
	journal    *failures.ErrorManager
	register   *results.ResultManager
	now        func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock stamped into documents.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithFontBytes uses an in-memory font instead of the configured path.
func WithFontBytes(assetID string, data []byte) Option {
	return func(g *Generator) {
		g.fontID = assetID
		g.fontData = data
	}
}

// WithFontLoader shares a font cache between generators.
func WithFontLoader(l *fonts.Loader) Option {
	return func(g *Generator) { g.fonts = l }
}

// WithLogo uses an already decoded logo instead of loading the configured path.
func WithLogo(img *assets.Image) Option {
	return func(g *Generator) {
		g.logo = img
		g.logoSet = true
	}
}

// WithArchive copies every finalized artifact to sink.
func WithArchive(sink archive.Sink) Option {
	return func(g *Generator) { g.sink = sink }
}

// WithJournal records batch failures in j.
func WithJournal(j *failures.ErrorManager) Option {
	return func(g *Generator) { g.journal = j }
}

// WithRegister records every issued document in r.
func WithRegister(r *results.ResultManager) Option {
	return func(g *Generator) { g.register = r }
}

// WithEncoder replaces the default encoder.
func WithEncoder(e *pdf.Encoder) Option {
	return func(g *Generator) { g.encoder = e }
}

// New creates a Generator from cfg.
func New(cfg *types.Config, opts ...Option) (*Generator, error) {
	if cfg == nil {
		return nil, types.NewDocError(types.ErrConfig, "no configuration", nil)
	}
	g := &Generator{
		cfg:        cfg,
		fontID:     cfg.FontPath,
		encoder:    pdf.NewEncoder(),
		translator: translator.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.fonts == nil {
		g.fonts = fonts.NewLoader(fonts.WithRequiredRunes(cfg.RequiredRunes))
	}
	if g.fontID == "" {
		return nil, types.NewDocError(types.ErrConfig, "font path not set", nil)
	}

	registry, err := templates.NewRegistry(templates.WithClock(g.now))
	if err != nil {
		return nil, err
	}
	g.registry = registry
	return g, nil
}

// Kinds returns the supported document kinds.
func (g *Generator) Kinds() []string {
	return g.registry.Kinds()
}

// Validate checks data for kind without drawing anything.
func (g *Generator) Validate(kind string, data map[string]any) (validator.Values, error) {
	tmpl, err := g.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return tmpl.Validate(data)
}

// Generate builds one document. Nothing is written anywhere before the
// document is finalized; a cancelled ctx before that point yields no output.
func (g *Generator) Generate(ctx context.Context, kind string, data map[string]any) (*Result, error) {
	start := time.Now()

	tmpl, err := g.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}

	// The logo loads while the form is validated.
	pending := g.loadLogo()

	values, err := tmpl.Validate(data)
	if err != nil {
		logger.Warn("form rejected", logger.String("kind", kind), logger.Err(err))
		return nil, err
	}

	font, err := g.loadFont()
	if err != nil {
		logger.Error("font unavailable", err, logger.String("font", g.fontID))
		return nil, err
	}

	issuedAt := g.now()
	filename := tmpl.Filename(values)
	reference := Reference(kind, values.TextOr("matricule", ""), filename, issuedAt)

	logo, err := pending.Await(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("logo unavailable, continuing without it",
			logger.String("code", string(types.ErrAssetLoad)),
			logger.String("path", g.cfg.LogoPath),
			logger.Err(err))
		logo = nil
	}

	def := tmpl.Definition()
	c, err := layout.New(layout.Options{
		ArabicFont: font,
		CreatedAt:  issuedAt,
		Title:      def.Title.Latin,
		Subject:    kind,
		Author:     g.cfg.Organization.NameLatin,
		Creator:    producer,
	})
	if err != nil {
		return nil, err
	}

	untranslated, err := tmpl.Draw(c, values, templates.Context{
		Org:        g.cfg.Organization,
		Logo:       logo,
		IssuedAt:   issuedAt,
		Reference:  reference,
		Translator: g.translator,
	})
	if err != nil {
		logger.Error("layout failed", err, logger.String("kind", kind))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifact, err := g.encoder.Finalize(c.Document())
	if err != nil {
		logger.Error("encoding failed", err, logger.String("kind", kind))
		return nil, err
	}

	result := &Result{
		Bytes:             artifact.Bytes,
		PortableText:      artifact.PortableText,
		SuggestedFilename: filename,
		Kind:              kind,
		PageCount:         artifact.PageCount,
		Reference:         reference,
		Digest:            artifact.Digest,
		Matricule:         values.TextOr("matricule", ""),
		IssuedAt:          issuedAt,
		Untranslated:      untranslated,
	}

	if g.sink != nil {
		loc, err := g.sink.Store(ctx, reference, filename, artifact.Bytes)
		if err != nil {
			logger.Warn("archive failed", logger.String("file", filename), logger.Err(err))
			result.ArchiveError = err
		}
		result.ArchivedAt = loc
	}

	if g.register != nil {
		if err := g.register.Record(registerEntry(result), result.Bytes); err != nil {
			logger.Warn("register failed", logger.String("reference", reference), logger.Err(err))
			result.RegisterError = err
		}
	}

	logger.Info("document generated",
		logger.String("kind", kind),
		logger.String("file", filename),
		logger.String("reference", reference),
		logger.Int("bytes", len(result.Bytes)),
		logger.Int("untranslated", len(untranslated)),
		logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return result, nil
}

func (g *Generator) loadLogo() *assets.Pending {
	if g.logoSet {
		return assets.Resolved(g.logo, nil)
	}
	return assets.LoadAsync(g.cfg.LogoPath)
}

func (g *Generator) loadFont() (*fonts.RegisteredFont, error) {
	if g.fontData != nil {
		return g.fonts.LoadBytes(g.fontID, g.fontData)
	}
	return g.fonts.Load(g.fontID)
}

// Reference derives the document reference from what identifies the document.
// The same inputs always give the same reference.
func Reference(kind, matricule, filename string, issuedAt time.Time) string {
	name := kind + "\x00" + matricule + "\x00" + filename + "\x00" + issuedAt.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(referenceNamespace, []byte(name)).String()
}

func registerEntry(res *Result) *results.DocumentInfo {
	return &results.DocumentInfo{
		Reference:    res.Reference,
		Kind:         res.Kind,
		Filename:     res.SuggestedFilename,
		Matricule:    res.Matricule,
		IssuedAt:     res.IssuedAt,
		Digest:       res.Digest,
		PageCount:    res.PageCount,
		Size:         len(res.Bytes),
		ArchivedAt:   res.ArchivedAt,
		Untranslated: res.Untranslated,
	}
}
