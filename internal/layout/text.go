package layout

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"

	"hrdocs/internal/shaper"
	"hrdocs/internal/types"
)

const (
	latinFamily = "Helvetica"
	styleBold   = "B"
)

// placement is a text run measured and positioned but not yet drawn.
type placement struct {
	run     shaper.GlyphRun
	logical string
	family  string
	style   string
	size    float64
	x       float64
	y       float64
	w       float64
}

// sanitize drops characters the drawing backend cannot encode.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case r > 0xFFFF, unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// fontFor picks the font of the script actually present in the run. Latin
// text with letters outside Windows-1252 goes to the embedded Unicode font,
// the core font would print them as dots.
func (c *Composer) fontFor(script shaper.Script, text, style string) (string, string) {
	if script == shaper.Arabic || !winAnsi(text) {
		return c.arabicFamily, ""
	}
	return latinFamily, style
}

// winAnsi reports whether every rune of s has a Windows-1252 code.
func winAnsi(s string) bool {
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return false
		}
	}
	return true
}

func (c *Composer) measure(run shaper.GlyphRun, family, style string, size float64) float64 {
	c.pdf.SetFont(family, style, size)
	if family == latinFamily {
		return c.pdf.GetStringWidth(c.tr(run.Text))
	}
	return c.pdf.GetStringWidth(run.Text)
}

// place shapes text and fits it into box, shrinking the font down to
// MinFontSize. Text that still does not fit is a layout overflow.
func (c *Composer) place(text string, box Box, anchor shaper.Anchor, size float64, style string, baseline float64) (placement, error) {
	logical := sanitize(text)
	script := shaper.DetectScript(logical)
	run := shaper.Shape(logical, script)
	run.Anchor = anchor
	family, style := c.fontFor(script, run.Text, style)

	w := c.measure(run, family, style, size)
	for w > box.Width() && size-shrinkStep >= MinFontSize {
		size -= shrinkStep
		w = c.measure(run, family, style, size)
	}
	if w > box.Width() {
		return placement{}, types.NewDocErrorWithDetails(types.ErrLayoutOverflow,
			"text does not fit its cell",
			fmt.Sprintf("%q needs %.1fmm, cell is %.1fmm", text, w, box.Width()), nil)
	}

	var x float64
	switch anchor {
	case shaper.AnchorRight:
		x = box.Right - w
	case shaper.AnchorCenter:
		x = box.Center() - w/2
	default:
		x = box.Left
	}
	if x < 0 || x+w > PageWidth || baseline < 0 || baseline > PageHeight {
		return placement{}, types.NewDocErrorWithDetails(types.ErrLayoutOverflow,
			"text outside the page", fmt.Sprintf("x=%.1f y=%.1f", x, baseline), nil)
	}

	return placement{
		run:     run,
		logical: logical,
		family:  family,
		style:   style,
		size:    size,
		x:       x,
		y:       baseline,
		w:       w,
	}, nil
}

func (c *Composer) draw(p placement) {
	if p.run.Empty() {
		return
	}
	c.pdf.SetFont(p.family, p.style, p.size)
	text := p.run.Text
	if p.family == latinFamily {
		text = c.tr(text)
	}
	c.pdf.Text(p.x, p.y, text)
	c.doc.commit(Op{
		Kind:     OpText,
		X:        p.x,
		Y:        p.y,
		W:        p.w,
		H:        p.size * ptToMM,
		Text:     p.run.Text,
		Logical:  p.logical,
		Script:   p.run.Script,
		Anchor:   p.run.Anchor,
		Font:     p.family,
		FontSize: p.size,
	})
}

// underline draws a rule under a placed run.
func (c *Composer) underline(p placement, offset float64) {
	if p.run.Empty() {
		return
	}
	c.line(p.x, p.y+offset, p.x+p.w, p.y+offset)
}

// wrap breaks logical text into lines that fit width at size. Lines are cut
// between words; a single word wider than the column is left for place to shrink.
func (c *Composer) wrap(text string, width, size float64) []string {
	words := strings.Fields(sanitize(text))
	if len(words) == 0 {
		return nil
	}
	var (
		lines   []string
		current string
	)
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current != "" && c.logicalWidth(candidate, size) > width {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	return append(lines, current)
}

func (c *Composer) logicalWidth(text string, size float64) float64 {
	script := shaper.DetectScript(text)
	run := shaper.Shape(text, script)
	family, style := c.fontFor(script, run.Text, "")
	return c.measure(run, family, style, size)
}

const ptToMM = 25.4 / 72
