// Package templates holds the four HR document kinds. Each kind is a YAML
// definition embedded in the binary: its fields with bilingual labels, the
// cross-field rules, and the fixed sequence of composer calls that draws it.
package templates

import (
	"fmt"
	"strings"
	"time"

	"hrdocs/internal/assets"
	"hrdocs/internal/layout"
	"hrdocs/internal/logger"
	"hrdocs/internal/shaper"
	"hrdocs/internal/translator"
	"hrdocs/internal/types"
	"hrdocs/internal/validator"
)

// Document kinds.
const (
	LeaveRequest        = "leave-request"
	MissionOrder        = "mission-order"
	WorkCertificate     = "work-certificate"
	SalaryDomiciliation = "salary-domiciliation"
)

const (
	tableColumns   = 4
	maxFooterLines = 2
	fileExtension  = ".pdf"
)

var tableWidths = [tableColumns]float64{44, 46, 46, 44}

// Context is what a drawing needs besides the form values.
type Context struct {
	Org        types.Organization
	Logo       *assets.Image
	IssuedAt   time.Time
	Reference  string
	Translator *translator.Translator
}

// Registry holds the templates of every kind.
type Registry struct {
	templates map[string]*Template
	kinds     []string
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	now func() time.Time
}

// WithClock sets the clock used by date rules such as "not in the future".
func WithClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) { o.now = now }
}

// NewRegistry builds the templates from the embedded definitions.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	p, err := definitions()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		templates: make(map[string]*Template, len(p.definitions)),
		kinds:     sortedKinds(p.definitions),
	}
	for kind, def := range p.definitions {
		r.templates[kind] = newTemplate(def, &p.common, o.now)
	}
	return r, nil
}

// Lookup returns the template of kind.
func (r *Registry) Lookup(kind string) (*Template, error) {
	t, ok := r.templates[kind]
	if !ok {
		return nil, types.NewDocErrorWithDetails(types.ErrUnknownKind, "unknown document kind", kind, nil)
	}
	return t, nil
}

// Kinds returns the supported kinds in alphabetical order.
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Template validates and draws one document kind.
type Template struct {
	def       *Definition
	common    *Common
	fields    map[string]*FieldDef
	computed  map[string]*ComputedDef
	validator *validator.FormValidator
}

func newTemplate(def *Definition, common *Common, now func() time.Time) *Template {
	t := &Template{
		def:      def,
		common:   common,
		fields:   make(map[string]*FieldDef, len(def.Fields)),
		computed: make(map[string]*ComputedDef, len(def.Computed)),
	}
	for i := range def.Fields {
		t.fields[def.Fields[i].Name] = &def.Fields[i]
	}
	for i := range def.Computed {
		t.computed[def.Computed[i].Name] = &def.Computed[i]
	}

	var rules []validator.Rule
	for _, r := range def.Rules {
		switch r.Kind {
		case ruleDateOrder:
			rules = append(rules, validator.DateOrder(r.Fields[0], r.Fields[1]))
		case ruleNotFuture:
			rules = append(rules, validator.NotAfter(r.Fields[0], now))
		}
	}
	t.validator = validator.New(def.fieldSpecs(), rules...)
	return t
}

// Kind returns the document kind.
func (t *Template) Kind() string {
	return t.def.Kind
}

// Definition returns the parsed definition.
func (t *Template) Definition() *Definition {
	return t.def
}

// Fields returns the validator declaration of the form.
func (t *Template) Fields() []validator.FieldSpec {
	return t.validator.Fields()
}

// Validate checks data before anything is drawn. A failure is a
// VALIDATION_ERROR naming the offending fields.
func (t *Template) Validate(data map[string]any) (validator.Values, error) {
	values, result := t.validator.Validate(data)
	for _, issue := range result.Issues {
		if issue.Severity == "warning" {
			logger.Warn("form warning",
				logger.String("kind", t.def.Kind),
				logger.String("field", issue.Field),
				logger.String("message", issue.Message))
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// Filename returns the suggested file name for a document built from values.
func (t *Template) Filename(values validator.Values) string {
	name := expand(t.def.Filename, func(token string) string {
		return values.TextOr(token, "")
	})
	return sanitizeFilename(name) + fileExtension
}

func sanitizeFilename(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
}

// Draw runs the drawing sequence of the kind on c. It returns the values that
// had no vocabulary entry and were printed untranslated in the Arabic column.
func (t *Template) Draw(c *layout.Composer, values validator.Values, ctx Context) ([]string, error) {
	s := newSheet(t, values, ctx)

	header := t.common.Header
	if err := c.AddHeader(ctx.Logo, s.expandAll(header.Latin, shaper.Latin), s.expandAll(header.Arabic, shaper.Arabic)); err != nil {
		return nil, err
	}
	if err := c.AddTitle(t.def.Title.Latin, t.def.Title.Arabic); err != nil {
		return nil, err
	}

	for i, b := range t.def.Blocks {
		if err := t.drawBlock(c, s, b); err != nil {
			logger.Debug("block failed", logger.String("kind", t.def.Kind), logger.Int("block", i), logger.Err(err))
			return nil, err
		}
	}

	if err := c.AddFooter(s.footer()...); err != nil {
		return nil, err
	}
	return s.untranslated, nil
}

func (t *Template) drawBlock(c *layout.Composer, s *sheet, b Block) error {
	switch {
	case b.Section != nil:
		return c.AddSectionHeader(b.Section.Latin, b.Section.Arabic)

	case len(b.Rows) > 0:
		for _, name := range b.Rows {
			label := t.label(name)
			if err := c.AddRow(label.Latin, s.latin[name], label.Arabic, s.arabic[name]); err != nil {
				return err
			}
		}
		return nil

	case b.Table != nil:
		h := b.Table.Headers
		columns := []layout.TableColumn{
			{Header: h[0], Width: tableWidths[0], Anchor: shaper.AnchorLeft},
			{Header: h[1], Width: tableWidths[1], Anchor: shaper.AnchorLeft},
			{Header: h[2], Width: tableWidths[2], Anchor: shaper.AnchorRight},
			{Header: h[3], Width: tableWidths[3], Anchor: shaper.AnchorRight},
		}
		rows := make([][]string, 0, len(b.Table.Fields))
		for _, name := range b.Table.Fields {
			label := t.label(name)
			rows = append(rows, []string{label.Latin, s.latin[name], s.arabic[name], label.Arabic})
		}
		return c.AddTable(columns, rows)

	case b.Paragraph != nil:
		return c.AddParagraph(s.expand(b.Paragraph.Latin, shaper.Latin), s.expand(b.Paragraph.Arabic, shaper.Arabic))

	case b.Issued:
		return c.AddParagraph(s.expand(t.common.Issued.Latin, shaper.Latin), s.expand(t.common.Issued.Arabic, shaper.Arabic))

	case len(b.Signatures) > 0:
		slots := make([]layout.SignatureSlot, 0, len(b.Signatures))
		for _, sig := range b.Signatures {
			slot := layout.SignatureSlot{LabelLatin: sig.Latin, LabelArabic: sig.Arabic}
			if sig.Name != "" {
				slot.Name = s.expand(sig.Name, shaper.Latin)
			}
			if sig.Image != "" {
				slot.ExpectImage = true
				slot.Image, _ = s.values.Image(sig.Image)
			}
			slots = append(slots, slot)
		}
		return c.AddSignatureBlock(slots...)

	case b.Space > 0:
		return c.Space(b.Space)
	}
	return nil
}

func (t *Template) label(name string) Text {
	if f, ok := t.fields[name]; ok {
		return f.Label
	}
	if c, ok := t.computed[name]; ok {
		return c.Label
	}
	return Text{Latin: name}
}

// sheet is the resolved printable text of every field in both scripts.
type sheet struct {
	t            *Template
	values       validator.Values
	ctx          Context
	latin        map[string]string
	arabic       map[string]string
	untranslated []string
}

func newSheet(t *Template, values validator.Values, ctx Context) *sheet {
	if ctx.Translator == nil {
		ctx.Translator = translator.Default()
	}
	s := &sheet{
		t:      t,
		values: values,
		ctx:    ctx,
		latin:  make(map[string]string, len(t.def.Fields)),
		arabic: make(map[string]string, len(t.def.Fields)),
	}
	seen := make(map[string]bool)
	miss := func(term string) {
		if !seen[term] {
			seen[term] = true
			s.untranslated = append(s.untranslated, term)
		}
	}

	for _, f := range t.def.Fields {
		val, ok := values[f.Name]
		if !ok {
			continue
		}
		switch f.Type {
		case "image":
			continue
		case "bool":
			answer := t.common.No
			if val.Bool {
				answer = t.common.Yes
			}
			s.latin[f.Name], s.arabic[f.Name] = answer.Latin, answer.Arabic
			continue
		}

		latin := val.Text
		arabic := latin
		if ar, ok := values.Text(arabicCompanion(f.Name)); ok && ar != "" {
			arabic = ar
		} else if f.Translate {
			res := ctx.Translator.Translate(latin, shaper.Arabic)
			arabic = res.Text
			switch {
			case !res.IsTranslated() && shaper.DetectScript(latin) != shaper.Arabic:
				miss(latin)
			case res.Partial():
				for _, m := range res.Misses {
					miss(m)
				}
			}
		}
		s.latin[f.Name] = latin + f.Suffix.Latin
		s.arabic[f.Name] = arabic + f.Suffix.Arabic
	}

	for _, c := range t.def.Computed {
		start, ok1 := values.Date(c.Fields[0])
		end, ok2 := values.Date(c.Fields[1])
		if !ok1 || !ok2 {
			continue
		}
		days := daysBetween(start, end)
		s.latin[c.Name] = fmt.Sprintf(c.Format.Latin, days)
		s.arabic[c.Name] = fmt.Sprintf(c.Format.Arabic, days)
	}

	if len(s.untranslated) > 0 {
		logger.Info("values printed untranslated",
			logger.String("kind", t.def.Kind),
			logger.String("terms", strings.Join(s.untranslated, ", ")))
	}
	return s
}

// daysBetween counts calendar days from start to end, both included.
func daysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

func (s *sheet) token(name string, script shaper.Script) string {
	org := s.ctx.Org
	arabic := script == shaper.Arabic
	pick := func(latin, ar string) string {
		if arabic && ar != "" {
			return ar
		}
		return latin
	}

	var v string
	switch name {
	case tokenOrgName:
		v = pick(org.NameLatin, org.NameArabic)
	case tokenOrgCity:
		v = pick(org.CityLatin, org.CityArabic)
	case tokenSignatory:
		v = pick(org.SignatoryLatin, org.SignatoryArabic)
	case tokenIssued:
		if !s.ctx.IssuedAt.IsZero() {
			v = s.ctx.IssuedAt.Format(validator.DateLayout)
		}
	case tokenReference:
		v = s.ctx.Reference
	default:
		if arabic {
			v = s.arabic[name]
		} else {
			v = s.latin[name]
		}
	}
	if v == "" {
		return layout.Placeholder
	}
	return v
}

func (s *sheet) expand(text string, script shaper.Script) string {
	return expand(text, func(name string) string { return s.token(name, script) })
}

func (s *sheet) expandAll(lines []string, script shaper.Script) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, s.expand(l, script))
	}
	return out
}

// footer pairs the organization address lines and closes with the reference.
func (s *sheet) footer() []layout.FooterLine {
	org := s.ctx.Org
	n := len(org.AddressLatin)
	if len(org.AddressArabic) > n {
		n = len(org.AddressArabic)
	}
	if n > maxFooterLines {
		n = maxFooterLines
	}
	lines := make([]layout.FooterLine, 0, n+1)
	for i := 0; i < n; i++ {
		var l layout.FooterLine
		if i < len(org.AddressLatin) {
			l.Latin = org.AddressLatin[i]
		}
		if i < len(org.AddressArabic) {
			l.Arabic = org.AddressArabic[i]
		}
		lines = append(lines, l)
	}
	if s.ctx.Reference != "" {
		ref := s.t.common.Reference
		lines = append(lines, layout.FooterLine{
			Latin:  s.expand(ref.Latin, shaper.Latin),
			Arabic: s.expand(ref.Arabic, shaper.Arabic),
		})
	}
	return lines
}
