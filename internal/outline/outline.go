// Package outline validates the heading hierarchy of a whole document.
package outline

import (
	"github.com/hpungsan/nbaudit/internal/extract"
)

// Kind distinguishes outline findings.
type Kind int

const (
	// Skip is a heading deeper than one level below its predecessor.
	Skip Kind = iota + 1
	// OutOfOrder is a heading shallower than the document's first heading.
	OutOfOrder
)

// Finding is one outline problem. From is the level that was expected and
// To the level found.
type Finding struct {
	Kind    Kind
	From    int
	To      int
	CellID  string
	Heading string
}

// Validate walks headings in document order.
//
// previousLevel and highestLevel both start at the first heading's level.
// A level more than one below previousLevel is a Skip; otherwise a level
// shallower than highestLevel is OutOfOrder. highestLevel keeps the first
// heading's level for the whole walk.
func Validate(headings []extract.Heading) []Finding {
	if len(headings) == 0 {
		return nil
	}

	previousLevel := headings[0].Level
	highestLevel := previousLevel

	var findings []Finding
	for _, h := range headings {
		switch {
		case h.Level > previousLevel+1:
			findings = append(findings, Finding{
				Kind: Skip, From: previousLevel + 1, To: h.Level,
				CellID: h.CellID, Heading: h.Text,
			})
		case h.Level < highestLevel:
			findings = append(findings, Finding{
				Kind: OutOfOrder, From: highestLevel, To: h.Level,
				CellID: h.CellID, Heading: h.Text,
			})
		}
		previousLevel = h.Level
	}
	return findings
}

// Cell is the minimal view of a cell MissingTopLevel needs.
type Cell struct {
	ID         string
	IsMarkdown bool
}

// MissingTopLevel reports the cell that should carry a missing-h1 finding:
// the first markdown cell, when no heading anywhere is level 1.
func MissingTopLevel(cells []Cell, headings []extract.Heading) (string, bool) {
	for _, h := range headings {
		if h.Level == 1 {
			return "", false
		}
	}
	for _, c := range cells {
		if c.IsMarkdown {
			return c.ID, true
		}
	}
	return "", false
}
