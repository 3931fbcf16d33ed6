// Package translator substitutes a closed set of administrative terms between
// French (or English) and Arabic. It is a lookup table, not a translation engine:
// a term without an entry comes back unchanged and callers are told so.
package translator

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"hrdocs/internal/shaper"
)

// maxPhraseWords bounds the longest vocabulary entry tried at each position.
const maxPhraseWords = 4

// Outcome tells whether a lookup found anything.
type Outcome int

const (
	// Unchanged means no vocabulary entry matched; Text is the input.
	Unchanged Outcome = iota
	// Translated means at least one entry matched. Misses lists the words of the
	// input that were carried over as is.
	Translated
)

func (o Outcome) String() string {
	if o == Translated {
		return "translated"
	}
	return "unchanged"
}

// Result is the outcome of a lookup.
type Result struct {
	Outcome Outcome
	Text    string
	Misses  []string
}

// IsTranslated reports whether the lookup matched at least one entry.
func (r Result) IsTranslated() bool {
	return r.Outcome == Translated
}

// Partial reports whether some words were carried over untranslated.
func (r Result) Partial() bool {
	return r.Outcome == Translated && len(r.Misses) > 0
}

func unchanged(text string) Result {
	return Result{Outcome: Unchanged, Text: text}
}

// Translator holds the folded lookup tables. It is immutable after New and safe
// for concurrent use.
type Translator struct {
	toArabic   map[string]string
	toLatin    map[string]string
	connectors map[string]string
}

// New builds a Translator from the built-in vocabulary.
func New() *Translator {
	t := &Translator{
		toArabic:   make(map[string]string),
		toLatin:    make(map[string]string),
		connectors: make(map[string]string, len(connectors)),
	}
	for _, group := range vocabulary() {
		for _, p := range group {
			t.toArabic[key(tokenize(p.latin))] = p.arabic
			ak := key(tokenize(p.arabic))
			if _, ok := t.toLatin[ak]; !ok {
				t.toLatin[ak] = p.latin
			}
		}
	}
	for k, v := range connectors {
		t.connectors[fold(k)] = v
	}
	for k, v := range arabicConnectors {
		t.connectors[fold(k)] = v
	}
	return t
}

var (
	defaultOnce       sync.Once
	defaultTranslator *Translator
)

// Default returns the process-wide Translator.
func Default() *Translator {
	defaultOnce.Do(func() {
		defaultTranslator = New()
	})
	return defaultTranslator
}

// Translate looks term up with the default Translator.
func Translate(term string, target shaper.Script) Result {
	return Default().Translate(term, target)
}

// Len returns the number of Latin entries in the table.
func (t *Translator) Len() int {
	return len(t.toArabic)
}

// Translate converts term into target's language. Matching is whole-word and
// greedy on the longest known phrase; Latin matching ignores case and accents.
// Text already written in target's script is returned Unchanged.
func (t *Translator) Translate(term string, target shaper.Script) Result {
	if strings.TrimSpace(term) == "" {
		return unchanged(term)
	}

	source := shaper.DetectScript(term)
	if source == target {
		return unchanged(term)
	}

	table := t.toArabic
	if target == shaper.Latin {
		table = t.toLatin
	}

	toks := tokenize(term)
	var (
		out    []string
		misses []string
		hits   int
	)
	for i := 0; i < len(toks); {
		matched := false
		for n := min(maxPhraseWords, len(toks)-i); n >= 1; n-- {
			if v, ok := table[key(toks[i:i+n])]; ok {
				out = append(out, v)
				hits++
				i += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		tok := toks[i]
		i++
		switch {
		case tok.folded == "":
			out = append(out, tok.raw)
		case isConnector(t.connectors, tok.folded):
			if v := t.connectors[tok.folded]; v != "" {
				out = append(out, v)
			}
		case !hasLetter(tok.folded):
			out = append(out, tok.raw)
		default:
			out = append(out, tok.raw)
			misses = append(misses, tok.raw)
		}
	}

	if hits == 0 {
		return unchanged(term)
	}
	return Result{
		Outcome: Translated,
		Text:    strings.Join(out, " "),
		Misses:  misses,
	}
}

func isConnector(m map[string]string, folded string) bool {
	_, ok := m[folded]
	return ok
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// token is one word of the input: raw keeps the original spelling for
// pass-through, folded is the lookup form.
type token struct {
	raw    string
	folded string
}

func tokenize(s string) []token {
	var toks []token
	for _, word := range strings.Fields(s) {
		for _, part := range splitElision(word) {
			toks = append(toks, token{raw: part, folded: fold(part)})
		}
	}
	return toks
}

// splitElision separates French elided articles: "d'état" becomes "d'" and "état".
func splitElision(word string) []string {
	var parts []string
	start := 0
	for i, r := range word {
		if (r == '\'' || r == '’') && i > start {
			end := i + len(string(r))
			parts = append(parts, word[start:end])
			start = end
		}
	}
	if start < len(word) {
		parts = append(parts, word[start:])
	}
	return parts
}

func key(toks []token) string {
	folded := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.folded != "" {
			folded = append(folded, t.folded)
		}
	}
	return strings.Join(folded, " ")
}

// fold lowercases, strips accents and Arabic marks, and trims punctuation.
// Casers and transformers keep state, so each call builds its own.
func fold(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == 0x0640 })),
		cases.Fold(),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.TrimFunc(out, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
