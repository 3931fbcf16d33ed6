// Package layout is the fixed-coordinate page composer. A Composer owns one
// Document and lays content out in two mirrored columns: French on the left,
// anchored left, Arabic on the right, anchored right. Each operation advances a
// single vertical cursor; content that would cross into the footer zone fails
// with LAYOUT_OVERFLOW instead of being clipped or moved to a new page.
package layout

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"hrdocs/internal/assets"
	"hrdocs/internal/fonts"
	"hrdocs/internal/logger"
	"hrdocs/internal/shaper"
	"hrdocs/internal/types"
)

// Options configures a new Composer.
type Options struct {
	ArabicFont *fonts.RegisteredFont
	CreatedAt  time.Time
	Title      string
	Subject    string
	Author     string
	Creator    string
}

// Composer lays out one document. It is not safe for concurrent use; every
// build creates its own.
type Composer struct {
	doc          *Document
	pdf          *fpdf.Fpdf
	tr           func(string) string
	arabicFamily string
}

// New starts a document on a blank first page.
func New(opts Options) (*Composer, error) {
	if opts.ArabicFont == nil {
		return nil, types.NewDocError(types.ErrFontRegistration, "no Arabic font supplied", nil)
	}
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(createdAt)
	pdf.SetModificationDate(createdAt)
	pdf.SetCompression(true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(MarginLeft, MarginTop, MarginRight)
	pdf.SetProducer("hrdocs", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	if opts.Subject != "" {
		pdf.SetSubject(opts.Subject, true)
	}
	if opts.Author != "" {
		pdf.SetAuthor(opts.Author, true)
	}
	if opts.Creator != "" {
		pdf.SetCreator(opts.Creator, true)
	}

	doc := &Document{
		pdf:       pdf,
		state:     Initializing,
		footer:    make(map[int]bool),
		createdAt: createdAt,
		title:     opts.Title,
	}

	if err := opts.ArabicFont.Register(pdf); err != nil {
		return nil, err
	}
	doc.fonts = append(doc.fonts, opts.ArabicFont.Family, latinFamily)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if err := pdf.Error(); err != nil {
		return nil, types.NewDocError(types.ErrFontRegistration, "failed to load Latin code page", err)
	}

	c := &Composer{
		doc:          doc,
		pdf:          pdf,
		tr:           tr,
		arabicFamily: opts.ArabicFont.Family,
	}
	c.startPage()
	pdf.SetDrawColor(40, 40, 40)
	pdf.SetLineWidth(0.25)
	doc.state = Composing
	return c, nil
}

// Document returns the document being composed.
func (c *Composer) Document() *Document {
	return c.doc
}

func (c *Composer) startPage() {
	c.pdf.AddPage()
	c.doc.page++
	c.doc.cursor = MarginTop
}

func (c *Composer) check() error {
	if c.doc.state != Composing {
		return types.NewDocErrorWithDetails(types.ErrFinalized,
			"document no longer accepts content", c.doc.state.String(), nil)
	}
	return nil
}

// reserve verifies that height fits above the footer zone.
func (c *Composer) reserve(height float64, what string) error {
	if height < 0 {
		return types.NewDocErrorWithDetails(types.ErrLayoutOverflow,
			"negative advance", fmt.Sprintf("%s: %.1fmm", what, height), nil)
	}
	if c.doc.cursor+height > BodyBottom {
		return types.NewDocErrorWithDetails(types.ErrLayoutOverflow,
			"content exceeds page height",
			fmt.Sprintf("%s needs %.1fmm at y=%.1f, %.1fmm left on page %d",
				what, height, c.doc.cursor, BodyBottom-c.doc.cursor, c.doc.page), nil)
	}
	return nil
}

func (c *Composer) advance(height float64) {
	c.doc.cursor += height
}

func (c *Composer) line(x1, y1, x2, y2 float64) {
	c.pdf.Line(x1, y1, x2, y2)
	c.doc.commit(Op{Kind: OpLine, X: x1, Y: y1, W: x2 - x1, H: y2 - y1})
}

func (c *Composer) rect(x, y, w, h float64) {
	c.pdf.Rect(x, y, w, h, "D")
	c.doc.commit(Op{Kind: OpRect, X: x, Y: y, W: w, H: h})
}

// image draws img fitted into a w x h box centred on cx. A backend rejection
// is logged and the image skipped.
func (c *Composer) image(img *assets.Image, cx, y, maxW, h float64) bool {
	if img == nil {
		return false
	}
	w := maxW
	if ratio := img.AspectRatio(); ratio > 0 {
		w = h / ratio
		if w > maxW {
			w = maxW
			h = w * ratio
		}
	}
	opts := fpdf.ImageOptions{ImageType: img.Type}
	c.pdf.RegisterImageOptionsReader(img.Name, opts, bytes.NewReader(img.Data))
	if err := c.pdf.Error(); err != nil {
		c.pdf.ClearError()
		logger.Warn("image skipped", logger.String("image", img.Name), logger.Err(
			types.NewDocErrorWithDetails(types.ErrAssetLoad, "image rejected by PDF backend", img.Name, err)))
		return false
	}
	x := cx - w/2
	c.pdf.ImageOptions(img.Name, x, y, w, h, false, opts, 0, "")
	c.doc.commit(Op{Kind: OpImage, X: x, Y: y, W: w, H: h, Logical: img.Name})
	return true
}

func baselineOf(top float64) float64 {
	return top + LineHeight - 2
}

// AddHeader draws the logo centred at the top with the organization lines in
// each column beside it.
func (c *Composer) AddHeader(logo *assets.Image, latin, arabic []string) error {
	if err := c.check(); err != nil {
		return err
	}

	lines := len(latin)
	if len(arabic) > lines {
		lines = len(arabic)
	}
	height := float64(lines)*HeaderLeading + 3
	if logo != nil && LogoHeight+3 > height {
		height = LogoHeight + 3
	}
	if err := c.reserve(height, "header"); err != nil {
		return err
	}

	top := c.doc.cursor
	gap := 0.0
	if logo != nil {
		gap = LogoHeight * 1.2
	}
	latinBox := Box{Left: LatinColumn.Left, Right: FullWidth.Center() - gap/2 - 2}
	arabicBox := Box{Left: FullWidth.Center() + gap/2 + 2, Right: ArabicColumn.Right}

	var placed []placement
	for i, s := range latin {
		style := ""
		if i == 0 {
			style = styleBold
		}
		p, err := c.place(s, latinBox, shaper.AnchorLeft, HeaderSize, style, top+float64(i+1)*HeaderLeading)
		if err != nil {
			return err
		}
		placed = append(placed, p)
	}
	for i, s := range arabic {
		p, err := c.place(s, arabicBox, shaper.AnchorRight, HeaderSize+1, "", top+float64(i+1)*HeaderLeading)
		if err != nil {
			return err
		}
		placed = append(placed, p)
	}

	c.image(logo, FullWidth.Center(), top, gap, LogoHeight)
	for _, p := range placed {
		c.draw(p)
	}
	c.line(FullWidth.Left, top+height-1, FullWidth.Right, top+height-1)
	c.advance(height)
	return nil
}

// AddTitle centres the document title across the page, French first, with the
// Arabic title on the line below.
func (c *Composer) AddTitle(latin, arabic string) error {
	if err := c.check(); err != nil {
		return err
	}

	height := LineHeight + 3
	if arabic != "" {
		height += LineHeight + 1
	}
	if err := c.reserve(height, "title"); err != nil {
		return err
	}

	top := c.doc.cursor + 2
	pl, err := c.place(latin, FullWidth, shaper.AnchorCenter, TitleSize, styleBold, baselineOf(top))
	if err != nil {
		return err
	}
	var pa placement
	if arabic != "" {
		pa, err = c.place(arabic, FullWidth, shaper.AnchorCenter, TitleSize, "", baselineOf(top+LineHeight+1))
		if err != nil {
			return err
		}
	}

	c.draw(pl)
	c.underline(pl, 1.2)
	c.draw(pa)
	c.advance(height)
	return nil
}

// AddSectionHeader centres a section title in each column and underlines it
// with a rule as wide as the measured text.
func (c *Composer) AddSectionHeader(latin, arabic string) error {
	if err := c.check(); err != nil {
		return err
	}
	height := LineHeight + 2
	if err := c.reserve(height, "section header"); err != nil {
		return err
	}

	base := baselineOf(c.doc.cursor + 1)
	pl, err := c.place(latin, LatinColumn, shaper.AnchorCenter, SectionSize, styleBold, base)
	if err != nil {
		return err
	}
	pa, err := c.place(arabic, ArabicColumn, shaper.AnchorCenter, SectionSize, "", base)
	if err != nil {
		return err
	}

	c.draw(pl)
	c.underline(pl, 1.2)
	c.draw(pa)
	c.underline(pa, 1.2)
	c.advance(height)
	return nil
}

// AddRow draws one bilingual label/value pair per column. An empty value is
// printed as the dotted placeholder.
func (c *Composer) AddRow(latinLabel, latinValue, arabicLabel, arabicValue string) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.reserve(LineHeight, "row "+latinLabel); err != nil {
		return err
	}

	base := baselineOf(c.doc.cursor)
	placed := make([]placement, 0, 4)

	labelLimit := columnWidth * 0.55
	if latinLabel != "" {
		lbl, err := c.place(latinLabel+" :", Box{Left: LatinColumn.Left, Right: LatinColumn.Left + labelLimit}, shaper.AnchorLeft, BodySize, "", base)
		if err != nil {
			return err
		}
		val, err := c.place(valueOr(latinValue), Box{Left: lbl.x + lbl.w + 2, Right: LatinColumn.Right}, shaper.AnchorLeft, BodySize, styleBold, base)
		if err != nil {
			return err
		}
		placed = append(placed, lbl, val)
	}
	if arabicLabel != "" {
		lbl, err := c.place(arabicLabel+" :", Box{Left: ArabicColumn.Right - labelLimit, Right: ArabicColumn.Right}, shaper.AnchorRight, BodySize+1, "", base)
		if err != nil {
			return err
		}
		val, err := c.place(valueOr(arabicValue), Box{Left: ArabicColumn.Left, Right: lbl.x - 2}, shaper.AnchorRight, BodySize+1, styleBold, base)
		if err != nil {
			return err
		}
		placed = append(placed, lbl, val)
	}

	for _, p := range placed {
		c.draw(p)
	}
	c.advance(LineHeight)
	return nil
}

func valueOr(v string) string {
	if v == "" {
		return Placeholder
	}
	return v
}

// AddParagraph word-wraps free text in each column. The taller column sets the
// advance.
func (c *Composer) AddParagraph(latin, arabic string) error {
	if err := c.check(); err != nil {
		return err
	}

	latinLines := c.wrap(latin, LatinColumn.Width(), BodySize)
	arabicLines := c.wrap(arabic, ArabicColumn.Width(), BodySize+1)
	n := len(latinLines)
	if len(arabicLines) > n {
		n = len(arabicLines)
	}
	height := float64(n)*ParagraphLeading + 2
	if err := c.reserve(height, "paragraph"); err != nil {
		return err
	}

	top := c.doc.cursor
	var placed []placement
	for i, s := range latinLines {
		p, err := c.place(s, LatinColumn, shaper.AnchorLeft, BodySize, "", top+float64(i+1)*ParagraphLeading)
		if err != nil {
			return err
		}
		placed = append(placed, p)
	}
	for i, s := range arabicLines {
		p, err := c.place(s, ArabicColumn, shaper.AnchorRight, BodySize+1, "", top+float64(i+1)*ParagraphLeading)
		if err != nil {
			return err
		}
		placed = append(placed, p)
	}

	for _, p := range placed {
		c.draw(p)
	}
	c.advance(height)
	return nil
}

// TableColumn is a fixed-width table column.
type TableColumn struct {
	Header string
	Width  float64
	Anchor shaper.Anchor
}

// AddTable draws a ruled table: an outer rectangle divided by interior lines at
// the column offsets and row boundaries. Cells never reflow; text that does not
// fit its cell shrinks or fails. Empty cells print the placeholder.
func (c *Composer) AddTable(columns []TableColumn, rows [][]string) error {
	if err := c.check(); err != nil {
		return err
	}
	if len(columns) == 0 {
		return types.NewDocError(types.ErrLayoutOverflow, "table has no columns", nil)
	}

	total := 0.0
	header := false
	for _, col := range columns {
		total += col.Width
		if col.Header != "" {
			header = true
		}
	}
	if total > FullWidth.Width()+0.01 {
		return types.NewDocErrorWithDetails(types.ErrLayoutOverflow, "table wider than the page",
			fmt.Sprintf("%.1fmm > %.1fmm", total, FullWidth.Width()), nil)
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return types.NewDocErrorWithDetails(types.ErrLayoutOverflow, "table row does not match columns",
				fmt.Sprintf("row %d has %d cells, table has %d columns", i, len(row), len(columns)), nil)
		}
	}

	nrows := len(rows)
	if header {
		nrows++
	}
	height := float64(nrows) * TableRowHeight
	if err := c.reserve(height+2, "table"); err != nil {
		return err
	}

	x0 := FullWidth.Center() - total/2
	y0 := c.doc.cursor + 1

	boxes := make([]Box, len(columns))
	x := x0
	for i, col := range columns {
		boxes[i] = Box{Left: x, Right: x + col.Width}
		x += col.Width
	}

	var placed []placement
	rowTop := y0
	if header {
		for i, col := range columns {
			p, err := c.place(col.Header, boxes[i].Inset(CellPadding), shaper.AnchorCenter, BodySize, styleBold, rowTop+TableRowHeight-2.5)
			if err != nil {
				return err
			}
			placed = append(placed, p)
		}
		rowTop += TableRowHeight
	}
	for _, row := range rows {
		for i, cell := range row {
			p, err := c.place(valueOr(cell), boxes[i].Inset(CellPadding), columns[i].Anchor, BodySize, "", rowTop+TableRowHeight-2.5)
			if err != nil {
				return err
			}
			placed = append(placed, p)
		}
		rowTop += TableRowHeight
	}

	c.rect(x0, y0, total, height)
	for r := 1; r < nrows; r++ {
		y := y0 + float64(r)*TableRowHeight
		c.line(x0, y, x0+total, y)
	}
	for _, b := range boxes[1:] {
		c.line(b.Left, y0, b.Left, y0+height)
	}
	for _, p := range placed {
		c.draw(p)
	}
	c.advance(height + 2)
	return nil
}

// SignatureSlot is one signature area: bilingual caption, optional scanned
// signature and the signatory name. A slot with ExpectImage whose image is
// missing or rejected shows the placeholder instead.
type SignatureSlot struct {
	LabelLatin  string
	LabelArabic string
	Name        string
	Image       *assets.Image
	ExpectImage bool
}

// AddSignatureBlock spreads the slots evenly across the page width.
func (c *Composer) AddSignatureBlock(slots ...SignatureSlot) error {
	if err := c.check(); err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}
	if err := c.reserve(SignatureHeight, "signature block"); err != nil {
		return err
	}

	top := c.doc.cursor
	type slotPlan struct {
		box         Box
		texts       []placement
		image       *assets.Image
		imageY      float64
		placeholder *placement
	}
	plans := make([]slotPlan, 0, len(slots))
	for i, box := range FullWidth.split(len(slots)) {
		s := slots[i]
		plan := slotPlan{box: box, image: s.Image, imageY: top + 2*ParagraphLeading + 2}
		entries := []struct {
			text  string
			size  float64
			style string
			y     float64
		}{
			{s.LabelLatin, BodySize, styleBold, top + ParagraphLeading},
			{s.LabelArabic, BodySize + 1, "", top + 2*ParagraphLeading},
			{s.Name, BodySize, "", top + SignatureHeight - 2},
		}
		for _, e := range entries {
			if e.text == "" {
				continue
			}
			p, err := c.place(e.text, box.Inset(2), shaper.AnchorCenter, e.size, e.style, e.y)
			if err != nil {
				return err
			}
			plan.texts = append(plan.texts, p)
		}
		if s.ExpectImage {
			p, err := c.place(Placeholder, box.Inset(2), shaper.AnchorCenter, BodySize, "", plan.imageY+8)
			if err != nil {
				return err
			}
			plan.placeholder = &p
		}
		plans = append(plans, plan)
	}

	for i, plan := range plans {
		for _, p := range plan.texts {
			c.draw(p)
		}
		if c.image(plan.image, plan.box.Center(), plan.imageY, plan.box.Width()-10, 14) || plan.placeholder == nil {
			continue
		}
		if plan.image == nil {
			logger.Warn("signature image missing, placeholder drawn",
				logger.Int("slot", i),
				logger.Err(types.NewDocError(types.ErrAssetLoad, "no signature image", nil)))
		}
		c.draw(*plan.placeholder)
	}
	c.advance(SignatureHeight)
	return nil
}

// FooterLine is one footer line; a line with a single script is centred.
type FooterLine struct {
	Latin  string
	Arabic string
}

// AddFooter draws the footer zone at the bottom of the current page. It does
// not move the cursor and may be added once per page.
func (c *Composer) AddFooter(lines ...FooterLine) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.doc.footer[c.doc.page] {
		return types.NewDocErrorWithDetails(types.ErrLayoutOverflow, "footer already drawn",
			fmt.Sprintf("page %d", c.doc.page), nil)
	}
	if float64(len(lines))*FooterLeading+3 > FooterHeight {
		return types.NewDocErrorWithDetails(types.ErrLayoutOverflow, "footer exceeds its zone",
			fmt.Sprintf("%d lines", len(lines)), nil)
	}

	top := BodyBottom + 2
	var placed []placement
	for i, l := range lines {
		y := top + float64(i+1)*FooterLeading
		switch {
		case l.Latin != "" && l.Arabic != "":
			pl, err := c.place(l.Latin, LatinColumn, shaper.AnchorLeft, FooterSize, "", y)
			if err != nil {
				return err
			}
			pa, err := c.place(l.Arabic, ArabicColumn, shaper.AnchorRight, FooterSize+1, "", y)
			if err != nil {
				return err
			}
			placed = append(placed, pl, pa)
		case l.Latin != "" || l.Arabic != "":
			p, err := c.place(l.Latin+l.Arabic, FullWidth, shaper.AnchorCenter, FooterSize, "", y)
			if err != nil {
				return err
			}
			placed = append(placed, p)
		}
	}

	c.line(FullWidth.Left, top, FullWidth.Right, top)
	for _, p := range placed {
		c.draw(p)
	}
	c.doc.footer[c.doc.page] = true
	return nil
}

// Space moves the cursor down by mm.
func (c *Composer) Space(mm float64) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.reserve(mm, "space"); err != nil {
		return err
	}
	c.advance(mm)
	return nil
}

// NewPage starts the next fixed page. Templates call it explicitly; content is
// never moved to a new page automatically.
func (c *Composer) NewPage() error {
	if err := c.check(); err != nil {
		return err
	}
	c.startPage()
	return nil
}
