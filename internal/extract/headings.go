package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Heading is one heading found in a markdown cell.
type Heading struct {
	Level  int
	Text   string
	CellID string
	Offset int // byte offset within the cell source
}

// markdownHeadingPattern matches ATX headings. A single space after the
// hashes is required.
var markdownHeadingPattern = regexp.MustCompile(`(?m)^(#+) \s*(.*)$`)

// htmlHeadingOpen matches an opening <hN> tag, case-insensitive.
var htmlHeadingOpen = regexp.MustCompile(`(?i)<h(\d+)>`)

// fencePattern matches fenced code block delimiters (``` or ~~~) at the start of a line,
// allowing 0-3 spaces of indentation per CommonMark spec. Captures the fence characters
// (backticks or tildes) separately from leading whitespace.
var fencePattern = regexp.MustCompile("(?m)^[ ]{0,3}(`{3,}|~{3,})")

// Headings returns the markdown and HTML headings of src in the order they
// appear. Headings inside fenced code blocks are ignored.
func Headings(src, cellID string) []Heading {
	fences := fencedRanges(src)

	var out []Heading
	for _, m := range markdownHeadingPattern.FindAllStringSubmatchIndex(src, -1) {
		// match indices: [fullStart, fullEnd, hashStart, hashEnd, textStart, textEnd]
		if insideFence(m[0], fences) {
			continue
		}
		out = append(out, Heading{
			Level:  m[3] - m[2],
			Text:   strings.TrimSpace(src[m[4]:m[5]]),
			CellID: cellID,
			Offset: m[0],
		})
	}

	for _, h := range htmlHeadings(src, cellID) {
		if !insideFence(h.Offset, fences) {
			out = append(out, h)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// htmlHeadings finds <hN>text</hN> pairs on a single line. The closing tag
// must carry the same level as the opening one.
func htmlHeadings(src, cellID string) []Heading {
	var out []Heading
	pos := 0
	for pos < len(src) {
		m := htmlHeadingOpen.FindStringSubmatchIndex(src[pos:])
		if m == nil {
			break
		}
		openStart, openEnd := pos+m[0], pos+m[1]
		digits := src[pos+m[2] : pos+m[3]]

		level, err := strconv.Atoi(digits)
		if err != nil {
			pos = openStart + 1
			continue
		}

		line := src[openEnd:]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		closeTag := "</h" + digits + ">"
		idx := indexFold(line, closeTag)
		if idx < 0 {
			pos = openStart + 1
			continue
		}

		out = append(out, Heading{
			Level:  level,
			Text:   strings.TrimSpace(line[:idx]),
			CellID: cellID,
			Offset: openStart,
		})
		pos = openEnd + idx + len(closeTag)
	}
	return out
}

// indexFold is strings.Index with ASCII case folding.
func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// fencedRanges returns byte offset ranges [start, end) for fenced code blocks in text.
// Properly pairs opening and closing fences: closing fence must use the same character
// (backtick or tilde) and be at least as long as the opening fence.
func fencedRanges(text string) [][2]int {
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var ranges [][2]int
	var openChar byte
	var openLen int
	var openStart int
	inFence := false

	for _, match := range matches {
		fenceChars := text[match[2]:match[3]]
		char := fenceChars[0]
		fenceLen := len(fenceChars)

		if !inFence {
			openChar = char
			openLen = fenceLen
			openStart = match[0]
			inFence = true
		} else if char == openChar && fenceLen >= openLen {
			ranges = append(ranges, [2]int{openStart, match[1]})
			inFence = false
		}
	}
	// An unclosed fence runs to the end of the cell, as in CommonMark
	if inFence {
		ranges = append(ranges, [2]int{openStart, len(text)})
	}
	return ranges
}

// insideFence returns true if byte offset pos falls inside any fenced range.
func insideFence(pos int, ranges [][2]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}
