// Package shaper turns logical text into visual glyph strings for a fixed-layout
// drawing backend: Arabic letters are replaced by their contextual presentation
// forms and mixed-direction runs are reordered for left-to-right drawing.
//
// Everything here is pure; nothing touches a PDF or a font.
package shaper

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Script identifies the writing system of a column.
type Script int

const (
	// Latin is the left-to-right column (French).
	Latin Script = iota
	// Arabic is the right-to-left column.
	Arabic
)

func (s Script) String() string {
	if s == Arabic {
		return "arabic"
	}
	return "latin"
}

// Direction is a paragraph reading direction.
type Direction int

const (
	LTR Direction = iota
	RTL
)

func (d Direction) String() string {
	if d == RTL {
		return "rtl"
	}
	return "ltr"
}

// Anchor tells the layout engine which edge of a cell a run hangs from.
type Anchor int

const (
	AnchorLeft Anchor = iota
	AnchorRight
	AnchorCenter
)

func (a Anchor) String() string {
	switch a {
	case AnchorRight:
		return "right"
	case AnchorCenter:
		return "center"
	default:
		return "left"
	}
}

// GlyphRun is shaped text in visual order, ready to be drawn left to right.
type GlyphRun struct {
	Text      string
	Glyphs    []rune
	Script    Script
	Direction Direction
	Anchor    Anchor
}

// Empty reports whether the run has nothing to draw.
func (g GlyphRun) Empty() bool {
	return len(g.Glyphs) == 0
}

// Len returns the number of glyphs in the run.
func (g GlyphRun) Len() int {
	return len(g.Glyphs)
}

// DirectionOf returns the paragraph direction used for a script.
func DirectionOf(s Script) Direction {
	if s == Arabic {
		return RTL
	}
	return LTR
}

// AnchorOf returns the column anchor used for a script.
func AnchorOf(s Script) Anchor {
	if s == Arabic {
		return AnchorRight
	}
	return AnchorLeft
}

// Shape normalizes text, substitutes Arabic presentation forms and reorders the
// result for the paragraph direction of script.
func Shape(text string, script Script) GlyphRun {
	run := GlyphRun{
		Script:    script,
		Direction: DirectionOf(script),
		Anchor:    AnchorOf(script),
	}
	if text == "" {
		return run
	}

	logical := ShapeArabic(norm.NFC.String(text))
	visual := Reorder(logical, run.Direction)

	run.Text = visual
	run.Glyphs = []rune(visual)
	return run
}

// DetectScript returns Arabic if text contains at least one Arabic letter.
func DetectScript(text string) Script {
	if ContainsArabic(text) {
		return Arabic
	}
	return Latin
}

// ContainsArabic reports whether text has an Arabic letter, base or presentation form.
func ContainsArabic(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
