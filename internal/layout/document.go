package layout

import (
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"hrdocs/internal/logger"
	"hrdocs/internal/shaper"
	"hrdocs/internal/types"
)

// State is the lifecycle stage of a Document.
type State int

const (
	Initializing State = iota
	Composing
	Finalized
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Composing:
		return "composing"
	case Finalized:
		return "finalized"
	}
	return "unknown"
}

// OpKind classifies a committed draw operation.
type OpKind string

const (
	OpText  OpKind = "text"
	OpLine  OpKind = "line"
	OpRect  OpKind = "rect"
	OpImage OpKind = "image"
)

// Op is one committed draw operation. Text ops carry the visual glyph string
// actually drawn and the logical text it came from; Y is the baseline.
type Op struct {
	Kind     OpKind
	Page     int
	X        float64
	Y        float64
	W        float64
	H        float64
	Text     string
	Logical  string
	Script   shaper.Script
	Anchor   shaper.Anchor
	Font     string
	FontSize float64
}

// Right returns the right edge of the op.
func (o Op) Right() float64 { return o.X + o.W }

// CenterX returns the horizontal middle of the op.
func (o Op) CenterX() float64 { return o.X + o.W/2 }

// Document is the build state of one document: the PDF being drawn, the page and
// cursor, and every operation committed so far. A Document belongs to a single
// build and is never reused.
type Document struct {
	pdf       *fpdf.Fpdf
	state     State
	page      int
	cursor    float64
	footer    map[int]bool
	ops       []Op
	fonts     []string
	createdAt time.Time
	title     string
}

// State returns the lifecycle stage.
func (d *Document) State() State { return d.state }

// Page returns the current page number, starting at 1.
func (d *Document) Page() int { return d.page }

// Cursor returns the current vertical position in millimetres.
func (d *Document) Cursor() float64 { return d.cursor }

// Remaining returns the body height left on the current page.
func (d *Document) Remaining() float64 { return BodyBottom - d.cursor }

// CreatedAt returns the issue time stamped into the document metadata.
func (d *Document) CreatedAt() time.Time { return d.createdAt }

// Title returns the document title metadata.
func (d *Document) Title() string { return d.title }

// Fonts returns the font families registered with the document.
func (d *Document) Fonts() []string {
	out := make([]string, len(d.fonts))
	copy(out, d.fonts)
	return out
}

// Ops returns a copy of the committed draw operations in order.
func (d *Document) Ops() []Op {
	out := make([]Op, len(d.ops))
	copy(out, d.ops)
	return out
}

// TextOps returns the committed text operations.
func (d *Document) TextOps() []Op {
	var out []Op
	for _, op := range d.ops {
		if op.Kind == OpText {
			out = append(out, op)
		}
	}
	return out
}

// FindText returns the first text op whose logical text equals s.
func (d *Document) FindText(s string) (Op, bool) {
	for _, op := range d.ops {
		if op.Kind == OpText && op.Logical == s {
			return op, true
		}
	}
	return Op{}, false
}

// Render serializes the document. It may be called once; the document is
// Finalized afterwards whether or not serialization succeeded.
func (d *Document) Render(w io.Writer) error {
	if d.state == Finalized {
		return types.NewDocError(types.ErrFinalized, "document already finalized", nil)
	}
	d.state = Finalized

	if err := d.pdf.Output(w); err != nil {
		return types.NewDocError(types.ErrEncoding, "failed to serialize document", err)
	}
	logger.Debug("document rendered",
		logger.Int("pages", d.page),
		logger.Int("ops", len(d.ops)))
	return nil
}

func (d *Document) commit(op Op) {
	op.Page = d.page
	d.ops = append(d.ops, op)
}
