package shaper

import (
	"golang.org/x/text/unicode/bidi"
)

// cluster is a base character followed by the marks that render on it. Visual
// reordering moves clusters, never the marks inside them.
type cluster struct {
	runes []rune
	level int
}

// Reorder applies the bidirectional algorithm to a single paragraph without
// explicit embeddings and returns the text in visual (left to right) order.
func Reorder(text string, dir Direction) string {
	rs := []rune(text)
	if len(rs) == 0 {
		return text
	}

	base := 0
	if dir == RTL {
		base = 1
	}

	original := make([]bidi.Class, len(rs))
	for i, r := range rs {
		original[i] = classOf(r)
	}
	if base == 0 && !hasStrongRTL(original) {
		return text
	}

	resolved := make([]bidi.Class, len(rs))
	copy(resolved, original)
	resolveWeak(resolved, base)
	resolveNeutral(resolved, base)
	levels := resolveImplicit(resolved, base)
	resetWhitespace(original, levels, base)

	clusters := makeClusters(rs, original, levels)
	reverseLevels(clusters)

	out := make([]rune, 0, len(rs))
	for _, c := range clusters {
		for _, r := range c.runes {
			if c.level%2 == 1 {
				r = mirror(r)
			}
			out = append(out, r)
		}
	}
	return string(out)
}

func classOf(r rune) bidi.Class {
	p, _ := bidi.LookupRune(r)
	switch c := p.Class(); c {
	case bidi.L, bidi.R, bidi.AL, bidi.EN, bidi.AN, bidi.ES, bidi.ET, bidi.CS,
		bidi.NSM, bidi.WS, bidi.B, bidi.S, bidi.ON:
		return c
	case bidi.BN:
		return bidi.BN
	default:
		// Explicit formatting characters are not supported; they behave as neutrals.
		return bidi.ON
	}
}

func hasStrongRTL(classes []bidi.Class) bool {
	for _, c := range classes {
		if c == bidi.R || c == bidi.AL || c == bidi.AN {
			return true
		}
	}
	return false
}

func embeddingClass(base int) bidi.Class {
	if base%2 == 1 {
		return bidi.R
	}
	return bidi.L
}

// resolveWeak implements rules W1 to W7.
func resolveWeak(t []bidi.Class, base int) {
	sos := embeddingClass(base)

	// W1
	for i := range t {
		if t[i] == bidi.NSM {
			if i == 0 {
				t[i] = sos
			} else {
				t[i] = t[i-1]
			}
		}
	}
	// W2
	last := sos
	for i := range t {
		switch t[i] {
		case bidi.L, bidi.R, bidi.AL:
			last = t[i]
		case bidi.EN:
			if last == bidi.AL {
				t[i] = bidi.AN
			}
		}
	}
	// W3
	for i := range t {
		if t[i] == bidi.AL {
			t[i] = bidi.R
		}
	}
	// W4
	for i := 1; i+1 < len(t); i++ {
		prev, next := t[i-1], t[i+1]
		switch {
		case t[i] == bidi.ES && prev == bidi.EN && next == bidi.EN:
			t[i] = bidi.EN
		case t[i] == bidi.CS && prev == bidi.EN && next == bidi.EN:
			t[i] = bidi.EN
		case t[i] == bidi.CS && prev == bidi.AN && next == bidi.AN:
			t[i] = bidi.AN
		}
	}
	// W5
	for i := 0; i < len(t); i++ {
		if t[i] != bidi.ET {
			continue
		}
		j := i
		for j < len(t) && t[j] == bidi.ET {
			j++
		}
		if (i > 0 && t[i-1] == bidi.EN) || (j < len(t) && t[j] == bidi.EN) {
			for k := i; k < j; k++ {
				t[k] = bidi.EN
			}
		}
		i = j - 1
	}
	// W6
	for i := range t {
		switch t[i] {
		case bidi.ES, bidi.ET, bidi.CS, bidi.BN:
			t[i] = bidi.ON
		}
	}
	// W7
	last = sos
	for i := range t {
		switch t[i] {
		case bidi.L, bidi.R:
			last = t[i]
		case bidi.EN:
			if last == bidi.L {
				t[i] = bidi.L
			}
		}
	}
}

func isNeutral(c bidi.Class) bool {
	return c == bidi.ON || c == bidi.WS || c == bidi.B || c == bidi.S
}

// strongOf maps resolved classes to L or R for neutral resolution; numbers count as R.
func strongOf(c bidi.Class) bidi.Class {
	if c == bidi.L {
		return bidi.L
	}
	return bidi.R
}

// resolveNeutral implements rules N1 and N2.
func resolveNeutral(t []bidi.Class, base int) {
	e := embeddingClass(base)
	for i := 0; i < len(t); i++ {
		if !isNeutral(t[i]) {
			continue
		}
		j := i
		for j < len(t) && isNeutral(t[j]) {
			j++
		}
		before, after := e, e
		if i > 0 {
			before = strongOf(t[i-1])
		}
		if j < len(t) {
			after = strongOf(t[j])
		}
		dir := e
		if before == after {
			dir = before
		}
		for k := i; k < j; k++ {
			t[k] = dir
		}
		i = j - 1
	}
}

// resolveImplicit implements rules I1 and I2.
func resolveImplicit(t []bidi.Class, base int) []int {
	levels := make([]int, len(t))
	for i, c := range t {
		lvl := base
		if base%2 == 0 {
			switch c {
			case bidi.R:
				lvl++
			case bidi.AN, bidi.EN:
				lvl += 2
			}
		} else if c == bidi.L || c == bidi.EN || c == bidi.AN {
			lvl++
		}
		levels[i] = lvl
	}
	return levels
}

// resetWhitespace implements rule L1 on original classes: separators and the
// whitespace before them or at the end of the line return to the paragraph level.
func resetWhitespace(original []bidi.Class, levels []int, base int) {
	trailing := true
	for i := len(original) - 1; i >= 0; i-- {
		switch original[i] {
		case bidi.S, bidi.B:
			levels[i] = base
			trailing = true
		case bidi.WS, bidi.BN:
			if trailing {
				levels[i] = base
			}
		default:
			trailing = false
		}
	}
}

func makeClusters(rs []rune, original []bidi.Class, levels []int) []cluster {
	clusters := make([]cluster, 0, len(rs))
	for i, r := range rs {
		if original[i] == bidi.NSM && len(clusters) > 0 {
			last := &clusters[len(clusters)-1]
			last.runes = append(last.runes, r)
			continue
		}
		clusters = append(clusters, cluster{runes: []rune{r}, level: levels[i]})
	}
	return clusters
}

// reverseLevels implements rule L2.
func reverseLevels(cs []cluster) {
	highest, lowestOdd := 0, -1
	for _, c := range cs {
		if c.level > highest {
			highest = c.level
		}
		if c.level%2 == 1 && (lowestOdd < 0 || c.level < lowestOdd) {
			lowestOdd = c.level
		}
	}
	if lowestOdd < 0 {
		return
	}
	for lvl := highest; lvl >= lowestOdd; lvl-- {
		for i := 0; i < len(cs); i++ {
			if cs[i].level < lvl {
				continue
			}
			j := i
			for j < len(cs) && cs[j].level >= lvl {
				j++
			}
			for a, b := i, j-1; a < b; a, b = a+1, b-1 {
				cs[a], cs[b] = cs[b], cs[a]
			}
			i = j
		}
	}
}

var mirrors = map[rune]rune{
	'(': ')', ')': '(',
	'[': ']', ']': '[',
	'{': '}', '}': '{',
	'<': '>', '>': '<',
	'«': '»', '»': '«',
	'‹': '›', '›': '‹',
}

func mirror(r rune) rune {
	if m, ok := mirrors[r]; ok {
		return m
	}
	return r
}
