// Package issue defines accessibility findings and the per-cell registry
// that holds them.
package issue

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/nbaudit/internal/color"
)

// Kind identifies the type of finding.
type Kind int

const (
	MissingAlt Kind = iota + 1
	LowContrast
	HighTransparency
	HeadingSkip
	HeadingOutOfOrder
	MissingTopLevelHeading
)

var kindNames = map[Kind]string{
	MissingAlt:             "missing_alt",
	LowContrast:            "low_contrast",
	HighTransparency:       "high_transparency",
	HeadingSkip:            "heading_skip",
	HeadingOutOfOrder:      "heading_out_of_order",
	MissingTopLevelHeading: "missing_top_level_heading",
}

// String returns the snake_case kind name used in JSON output.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Severity is "error" or "warning".
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding attached to one cell. Only the fields relevant to
// Kind are set.
type Issue struct {
	Kind   Kind
	CellID string

	// Source is the image the finding came from, for image kinds.
	Source string

	// Ratio is the raw WCAG contrast ratio (LowContrast).
	Ratio      float64
	Foreground color.Color
	Background color.Color
	HasColors  bool

	// Score is the 0-10 opacity score (HighTransparency).
	Score float64

	// From is the expected heading level, To the level found.
	From int
	To   int
}

// NewMissingAlt creates a missing alternative text finding.
func NewMissingAlt(cellID string) Issue {
	return Issue{Kind: MissingAlt, CellID: cellID}
}

// NewLowContrast creates a text contrast finding.
func NewLowContrast(cellID, src string, ratio float64, fg, bg color.Color, hasColors bool) Issue {
	return Issue{Kind: LowContrast, CellID: cellID, Source: src, Ratio: ratio, Foreground: fg, Background: bg, HasColors: hasColors}
}

// NewHighTransparency creates a transparency finding from a 0-10 score.
func NewHighTransparency(cellID, src string, score float64) Issue {
	return Issue{Kind: HighTransparency, CellID: cellID, Source: src, Score: score}
}

// NewHeadingSkip creates a finding for a heading that skips levels.
func NewHeadingSkip(cellID string, expected, got int) Issue {
	return Issue{Kind: HeadingSkip, CellID: cellID, From: expected, To: got}
}

// NewHeadingOutOfOrder creates a finding for a heading above the first level.
func NewHeadingOutOfOrder(cellID string, expected, got int) Issue {
	return Issue{Kind: HeadingOutOfOrder, CellID: cellID, From: expected, To: got}
}

// NewMissingTopLevel creates the document-level missing h1 finding.
func NewMissingTopLevel(cellID string) Issue {
	return Issue{Kind: MissingTopLevelHeading, CellID: cellID}
}

// Message renders the human-readable text shown to users. Two issues with
// the same kind and message are the same finding.
func (i Issue) Message() string {
	switch i.Kind {
	case MissingAlt:
		return "Cell Error: Missing Alt Tag"
	case LowContrast:
		return fmt.Sprintf("Cell Error: Text Contrast %.2f:1", i.Ratio)
	case HighTransparency:
		return fmt.Sprintf("Image Err: High Image Transparency (%.2f%%)", (10-i.Score)*10)
	case HeadingSkip, HeadingOutOfOrder:
		return fmt.Sprintf("Heading format: expecting h%d, got h%d", i.From, i.To)
	case MissingTopLevelHeading:
		return "Header format: Missing h1 header"
	default:
		return i.Kind.String()
	}
}

// Key is the de-duplication key.
func (i Issue) Key() string {
	return i.Kind.String() + "\x00" + i.Message()
}

// Severity returns the finding's severity.
func (i Issue) Severity() Severity {
	switch i.Kind {
	case MissingAlt, LowContrast:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Category returns the group the finding is listed under.
func (i Issue) Category() Category {
	switch i.Kind {
	case MissingAlt:
		return AltText
	case LowContrast:
		return Contrast
	case HighTransparency:
		return Transparency
	default:
		return Headers
	}
}

// issueJSON is the wire form of an Issue.
type issueJSON struct {
	Kind       string   `json:"kind"`
	CellID     string   `json:"cell_id"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Source     string   `json:"source,omitempty"`
	Ratio      float64  `json:"contrast_ratio,omitempty"`
	Foreground string   `json:"foreground,omitempty"`
	Background string   `json:"background,omitempty"`
	Score      *float64 `json:"transparency_score,omitempty"`
	Expected   int      `json:"expected_level,omitempty"`
	Found      int      `json:"found_level,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (i Issue) MarshalJSON() ([]byte, error) {
	out := issueJSON{
		Kind:     i.Kind.String(),
		CellID:   i.CellID,
		Message:  i.Message(),
		Severity: i.Severity(),
		Category: i.Category().Name,
		Source:   i.Source,
		Expected: i.From,
		Found:    i.To,
	}
	switch i.Kind {
	case LowContrast:
		out.Ratio = i.Ratio
		if i.HasColors {
			out.Foreground = i.Foreground.Hex()
			out.Background = i.Background.Hex()
		}
	case HighTransparency:
		score := i.Score
		out.Score = &score
	}
	return json.Marshal(out)
}
