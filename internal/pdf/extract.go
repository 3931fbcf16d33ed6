package pdf

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

// TextRow is one line of text read back from an encoded PDF.
type TextRow struct {
	Page     int
	X        float64
	Y        float64
	FontSize float64
	Font     string
	Text     string
}

// rowTolerance is how far apart, in points, two glyph baselines may be and
// still belong to the same row.
const rowTolerance = 1.5

// ExtractRows reads the text of every page, one entry per row, top to bottom.
// Coordinates are in PDF points with the origin at the bottom left.
func ExtractRows(data []byte) (rows []TextRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = types.NewDocError(types.ErrEncoding, "failed to read PDF text", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, types.NewDocError(types.ErrEncoding, "failed to open PDF", err)
	}

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageRows := groupRows(page.Content().Text)
		if len(pageRows) == 0 {
			logger.Debug("page has no text", logger.Int("page", pageNum))
		}
		for _, row := range pageRows {
			row.Page = pageNum
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// groupRows clusters glyphs sharing a baseline into rows, highest first, and
// joins each row left to right. A gap wider than a fifth of the font size
// between two glyphs becomes a space.
func groupRows(glyphs []pdf.Text) []TextRow {
	sorted := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" {
			sorted = append(sorted, g)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var rows []TextRow
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[start].Y-sorted[end].Y <= rowTolerance {
			end++
		}
		line := sorted[start:end]
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })

		var sb strings.Builder
		size := 0.0
		for i, g := range line {
			if i > 0 {
				prev := line[i-1]
				gap := g.X - prev.X - prev.W
				if gap > g.FontSize/5 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " ") {
					sb.WriteByte(' ')
				}
			}
			sb.WriteString(g.S)
			size = math.Max(size, g.FontSize)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			rows = append(rows, TextRow{
				X:        line[0].X,
				Y:        sorted[start].Y,
				FontSize: size,
				Font:     line[0].Font,
				Text:     text,
			})
		}
		start = end
	}
	return rows
}

// ContainsText reports whether any extracted row contains s.
func ContainsText(rows []TextRow, s string) bool {
	for _, row := range rows {
		if strings.Contains(row.Text, s) {
			return true
		}
	}
	return false
}
