package layout

// Page geometry in millimetres, A4 portrait. Every coordinate the composer
// produces is derived from these constants; nothing flows or reflows.
const (
	PageWidth    = 210.0
	PageHeight   = 297.0
	MarginLeft   = 15.0
	MarginRight  = 15.0
	MarginTop    = 12.0
	MarginBottom = 15.0
	ColumnGap    = 6.0

	LineHeight       = 7.0
	ParagraphLeading = 5.5
	TableRowHeight   = 8.0
	CellPadding      = 1.5
	SignatureHeight  = 34.0
	FooterHeight     = 18.0
	FooterLeading    = 4.0
	LogoHeight       = 20.0
	HeaderLeading    = 4.5

	BodySize    = 10.0
	HeaderSize  = 8.5
	SectionSize = 11.5
	TitleSize   = 15.0
	FooterSize  = 7.0
	MinFontSize = 6.0
	shrinkStep  = 0.5

	// BodyBottom is the lowest y body content may reach; below it is the footer zone.
	BodyBottom = PageHeight - MarginBottom - FooterHeight
)

// Placeholder stands in for an optional value that was not supplied.
const Placeholder = "...................."

// Box is a horizontal extent on the page.
type Box struct {
	Left  float64
	Right float64
}

// Width returns the extent of the box.
func (b Box) Width() float64 { return b.Right - b.Left }

// Center returns the horizontal middle of the box.
func (b Box) Center() float64 { return (b.Left + b.Right) / 2 }

// Inset shrinks the box by d on both sides.
func (b Box) Inset(d float64) Box { return Box{Left: b.Left + d, Right: b.Right - d} }

var (
	// FullWidth spans the printable width.
	FullWidth = Box{Left: MarginLeft, Right: PageWidth - MarginRight}
	// LatinColumn is the left, left-anchored column.
	LatinColumn = Box{Left: MarginLeft, Right: MarginLeft + columnWidth}
	// ArabicColumn is the right, right-anchored column.
	ArabicColumn = Box{Left: PageWidth - MarginRight - columnWidth, Right: PageWidth - MarginRight}
)

const columnWidth = (PageWidth - MarginLeft - MarginRight - ColumnGap) / 2

// split divides b into n equal boxes.
func (b Box) split(n int) []Box {
	boxes := make([]Box, n)
	w := b.Width() / float64(n)
	for i := range boxes {
		boxes[i] = Box{Left: b.Left + float64(i)*w, Right: b.Left + float64(i+1)*w}
	}
	return boxes
}
