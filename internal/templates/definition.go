package templates

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"hrdocs/internal/types"
	"hrdocs/internal/validator"
)

//go:embed definitions/*.yaml
var definitionFS embed.FS

const commonDefinition = "common.yaml"

// Text is a pair of French and Arabic strings.
type Text struct {
	Latin  string `yaml:"fr"`
	Arabic string `yaml:"ar"`
}

// Lines is a pair of French and Arabic line lists.
type Lines struct {
	Latin  []string `yaml:"fr"`
	Arabic []string `yaml:"ar"`
}

// FieldDef declares one form field of a document kind.
type FieldDef struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Required  bool   `yaml:"required"`
	Translate bool   `yaml:"translate"`
	Label     Text   `yaml:"label"`
	Suffix    Text   `yaml:"suffix"`
}

// ComputedDef is a value derived from other fields.
type ComputedDef struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Fields []string `yaml:"fields"`
	Format Text     `yaml:"format"`
	Label  Text     `yaml:"label"`
}

// RuleDef is a cross-field validation rule.
type RuleDef struct {
	Kind   string   `yaml:"kind"`
	Fields []string `yaml:"fields"`
}

// TableDef is a ruled table with one row per field.
type TableDef struct {
	Headers []string `yaml:"headers"`
	Fields  []string `yaml:"fields"`
}

// SignatureDef is one signature slot. Name may reference fields.
type SignatureDef struct {
	Latin  string `yaml:"fr"`
	Arabic string `yaml:"ar"`
	Name   string `yaml:"name"`
	Image  string `yaml:"image"`
}

// Block is one step of the drawing sequence. Exactly one member is set.
type Block struct {
	Section    *Text          `yaml:"section"`
	Rows       []string       `yaml:"rows"`
	Table      *TableDef      `yaml:"table"`
	Paragraph  *Text          `yaml:"paragraph"`
	Space      float64        `yaml:"space"`
	Issued     bool           `yaml:"issued"`
	Signatures []SignatureDef `yaml:"signatures"`
}

// Definition is the declarative description of one document kind.
type Definition struct {
	Kind     string        `yaml:"kind"`
	Title    Text          `yaml:"title"`
	Filename string        `yaml:"filename"`
	Fields   []FieldDef    `yaml:"fields"`
	Computed []ComputedDef `yaml:"computed"`
	Rules    []RuleDef     `yaml:"rules"`
	Blocks   []Block       `yaml:"blocks"`
}

// Common holds the text shared by every kind.
type Common struct {
	Header    Lines `yaml:"header"`
	Issued    Text  `yaml:"issued"`
	Reference Text  `yaml:"reference"`
	Yes       Text  `yaml:"yes"`
	No        Text  `yaml:"no"`
}

// Builtin placeholders available to every text.
const (
	tokenOrgName   = "org.name"
	tokenOrgCity   = "org.city"
	tokenSignatory = "org.signatory"
	tokenIssued    = "issued"
	tokenReference = "reference"
)

var builtinTokens = map[string]bool{
	tokenOrgName:   true,
	tokenOrgCity:   true,
	tokenSignatory: true,
	tokenIssued:    true,
	tokenReference: true,
}

const (
	ruleDateOrder = "date_order"
	ruleNotFuture = "not_future"

	computeDaysBetween = "days_between"
)

var fieldTypes = map[string]validator.FieldType{
	"text":      validator.TypeText,
	"date":      validator.TypeDate,
	"bool":      validator.TypeBool,
	"image":     validator.TypeImage,
	"account":   validator.TypeAccount,
	"amount":    validator.TypeAmount,
	"matricule": validator.TypeMatricule,
	"phone":     validator.TypePhone,
	"id":        validator.TypeID,
}

type parsed struct {
	common      Common
	definitions map[string]*Definition
}

var (
	parseOnce   sync.Once
	parseResult *parsed
	parseErr    error
)

// definitions parses the embedded YAML once per process.
func definitions() (*parsed, error) {
	parseOnce.Do(func() {
		parseResult, parseErr = parseDefinitions()
	})
	return parseResult, parseErr
}

func parseDefinitions() (*parsed, error) {
	entries, err := definitionFS.ReadDir("definitions")
	if err != nil {
		return nil, types.NewDocError(types.ErrConfig, "failed to list template definitions", err)
	}

	p := &parsed{definitions: make(map[string]*Definition)}
	for _, entry := range entries {
		name := entry.Name()
		data, err := definitionFS.ReadFile(path.Join("definitions", name))
		if err != nil {
			return nil, types.NewDocError(types.ErrConfig, "failed to read template definition", err)
		}

		if name == commonDefinition {
			if err := yaml.Unmarshal(data, &p.common); err != nil {
				return nil, types.NewDocErrorWithDetails(types.ErrConfig, "invalid template definition", name, err)
			}
			continue
		}

		def := &Definition{}
		if err := yaml.Unmarshal(data, def); err != nil {
			return nil, types.NewDocErrorWithDetails(types.ErrConfig, "invalid template definition", name, err)
		}
		if err := def.check(); err != nil {
			return nil, types.NewDocErrorWithDetails(types.ErrConfig, "inconsistent template definition", name, err)
		}
		if _, dup := p.definitions[def.Kind]; dup {
			return nil, types.NewDocErrorWithDetails(types.ErrConfig, "duplicate document kind", def.Kind, nil)
		}
		p.definitions[def.Kind] = def
	}
	return p, nil
}

// check verifies that every reference in the definition resolves.
func (d *Definition) check() error {
	if d.Kind == "" {
		return fmt.Errorf("missing kind")
	}
	if d.Title.Latin == "" {
		return fmt.Errorf("%s: missing title", d.Kind)
	}
	if d.Filename == "" {
		return fmt.Errorf("%s: missing filename", d.Kind)
	}

	known := make(map[string]string)
	for _, f := range d.Fields {
		if _, ok := fieldTypes[f.Type]; !ok {
			return fmt.Errorf("%s: field %s has unknown type %q", d.Kind, f.Name, f.Type)
		}
		if _, dup := known[f.Name]; dup {
			return fmt.Errorf("%s: field %s declared twice", d.Kind, f.Name)
		}
		known[f.Name] = f.Type
	}
	for _, c := range d.Computed {
		if c.Kind != computeDaysBetween || len(c.Fields) != 2 {
			return fmt.Errorf("%s: computed %s is not a two-date %s", d.Kind, c.Name, computeDaysBetween)
		}
		for _, f := range c.Fields {
			if known[f] != "date" {
				return fmt.Errorf("%s: computed %s needs date field %s", d.Kind, c.Name, f)
			}
		}
		known[c.Name] = "computed"
	}
	for _, r := range d.Rules {
		want := 2
		if r.Kind == ruleNotFuture {
			want = 1
		} else if r.Kind != ruleDateOrder {
			return fmt.Errorf("%s: unknown rule %q", d.Kind, r.Kind)
		}
		if len(r.Fields) != want {
			return fmt.Errorf("%s: rule %s takes %d fields", d.Kind, r.Kind, want)
		}
		for _, f := range r.Fields {
			if known[f] != "date" {
				return fmt.Errorf("%s: rule %s needs date field %s", d.Kind, r.Kind, f)
			}
		}
	}

	ref := func(name string) error {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%s: unknown field %s", d.Kind, name)
		}
		return nil
	}
	texts := []string{d.Filename}
	for _, b := range d.Blocks {
		for _, name := range b.Rows {
			if err := ref(name); err != nil {
				return err
			}
		}
		if b.Table != nil {
			if len(b.Table.Headers) != tableColumns {
				return fmt.Errorf("%s: table needs %d headers", d.Kind, tableColumns)
			}
			for _, name := range b.Table.Fields {
				if err := ref(name); err != nil {
					return err
				}
			}
		}
		if b.Paragraph != nil {
			texts = append(texts, b.Paragraph.Latin, b.Paragraph.Arabic)
		}
		for _, s := range b.Signatures {
			texts = append(texts, s.Name)
			if s.Image != "" && known[s.Image] != "image" {
				return fmt.Errorf("%s: signature image %s is not an image field", d.Kind, s.Image)
			}
		}
	}
	for _, text := range texts {
		for _, token := range tokens(text) {
			if builtinTokens[token] {
				continue
			}
			if err := ref(token); err != nil {
				return err
			}
		}
	}
	return nil
}

// fieldSpecs returns the validator declaration of the form. Every text field
// also accepts an optional "<name>Ar" companion holding its Arabic value.
func (d *Definition) fieldSpecs() []validator.FieldSpec {
	specs := make([]validator.FieldSpec, 0, len(d.Fields)*2)
	for _, f := range d.Fields {
		specs = append(specs, validator.FieldSpec{Name: f.Name, Type: fieldTypes[f.Type], Required: f.Required})
	}
	for _, f := range d.Fields {
		if f.Type == "text" {
			specs = append(specs, validator.FieldSpec{Name: arabicCompanion(f.Name), Type: validator.TypeText})
		}
	}
	return specs
}

func arabicCompanion(name string) string {
	return name + "Ar"
}

// tokens returns the {placeholder} names in s, in order.
func tokens(s string) []string {
	var out []string
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			return out
		}
		out = append(out, s[start+1:start+end])
		s = s[start+end+1:]
	}
}

// expand replaces every {placeholder} in s with lookup(name).
func expand(s string, lookup func(string) string) string {
	var sb strings.Builder
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			break
		}
		sb.WriteString(s[:start])
		sb.WriteString(lookup(s[start+1 : start+end]))
		s = s[start+end+1:]
	}
	sb.WriteString(s)
	return sb.String()
}

func sortedKinds(m map[string]*Definition) []string {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
