package audit

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/nbaudit/internal/contrast"
	"github.com/hpungsan/nbaudit/internal/extract"
	"github.com/hpungsan/nbaudit/internal/issue"
	"github.com/hpungsan/nbaudit/internal/notebook"
	"github.com/hpungsan/nbaudit/internal/outline"
	"github.com/hpungsan/nbaudit/internal/transparency"
)

// Scanner produces the content findings of cells: missing alt text plus the
// image analyses. Safe for concurrent use.
type Scanner struct {
	contrast     ContrastChecker
	transparency TransparencyChecker
	checks       Checks
	limit        int
}

// NewScanner creates a Scanner. A nil checker disables its check. limit
// bounds in-flight image analyses; 0 means unbounded.
func NewScanner(cc ContrastChecker, tc TransparencyChecker, checks Checks, limit int) *Scanner {
	if cc == nil {
		checks.Contrast = false
	}
	if tc == nil {
		checks.Transparency = false
	}
	return &Scanner{contrast: cc, transparency: tc, checks: checks, limit: limit}
}

// Checks returns the enabled checks.
func (s *Scanner) Checks() Checks {
	return s.checks
}

// Content extracts the image references of a cell: markdown cells are read
// as markdown and HTML, code cells through their rendered outputs.
func Content(c notebook.Cell) extract.Content {
	switch c.Type {
	case notebook.Markdown:
		return extract.MarkdownCell(c.Source, c.ID)
	case notebook.Code:
		return extract.CodeCell(c.OutputHTML(), c.ID)
	default:
		return extract.Content{}
	}
}

type imageSlot struct {
	ref          extract.ImageRef
	contrast     contrast.Result
	transparency transparency.Result
	scoredOK     bool
}

// Scan returns the content findings of cells keyed by cell id. Cells
// without findings are absent. Image analyses of all cells run as one task
// group; Scan returns ctx.Err() if the context ends before they finish.
func (s *Scanner) Scan(ctx context.Context, docPath string, cells []notebook.Cell) (map[string][]issue.Issue, error) {
	contents := make([]extract.Content, len(cells))
	slots := make([][]imageSlot, len(cells))

	g, gctx := errgroup.WithContext(ctx)
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for ci, c := range cells {
		contents[ci] = Content(c)
		if !s.checks.Contrast && !s.checks.Transparency {
			continue
		}
		slots[ci] = make([]imageSlot, len(contents[ci].Images))
		for ii, ref := range contents[ci].Images {
			slot := &slots[ci][ii]
			slot.ref = ref
			// Both analyses of one image run side by side so the fetch is shared
			if s.checks.Contrast {
				g.Go(func() error {
					slot.contrast = s.contrast.Analyze(gctx, ref.Source, docPath)
					return nil
				})
			}
			if s.checks.Transparency {
				g.Go(func() error {
					slot.transparency = s.transparency.Analyze(gctx, ref.Source, docPath)
					slot.scoredOK = true
					return nil
				})
			}
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]issue.Issue)
	for ci, c := range cells {
		var issues []issue.Issue
		if s.checks.Alt && contents[ci].MissingAlt {
			issues = append(issues, issue.NewMissingAlt(c.ID))
		}
		for _, slot := range slots[ci] {
			if s.checks.Contrast && slot.contrast.Flagged {
				r := slot.contrast
				issues = append(issues, issue.NewLowContrast(c.ID, slot.ref.Source, r.Ratio, r.Foreground, r.Background, r.HasColors))
			}
			if slot.scoredOK && s.transparency.Flagged(slot.transparency) {
				issues = append(issues, issue.NewHighTransparency(c.ID, slot.ref.Source, slot.transparency.Score))
			}
		}
		if len(issues) > 0 {
			out[c.ID] = issues
		}
	}
	return out, nil
}

// Outline validates the heading hierarchy of the whole document and returns
// the heading findings keyed by cell id. Only markdown cells carry headings.
func Outline(cells []notebook.Cell) map[string][]issue.Issue {
	var headings []extract.Heading
	view := make([]outline.Cell, 0, len(cells))
	for _, c := range cells {
		view = append(view, outline.Cell{ID: c.ID, IsMarkdown: c.IsMarkdown()})
		if c.IsMarkdown() {
			headings = append(headings, extract.Headings(c.Source, c.ID)...)
		}
	}

	out := make(map[string][]issue.Issue)
	for _, f := range outline.Validate(headings) {
		switch f.Kind {
		case outline.Skip:
			out[f.CellID] = append(out[f.CellID], issue.NewHeadingSkip(f.CellID, f.From, f.To))
		case outline.OutOfOrder:
			out[f.CellID] = append(out[f.CellID], issue.NewHeadingOutOfOrder(f.CellID, f.From, f.To))
		}
	}
	if id, ok := outline.MissingTopLevel(view, headings); ok {
		out[id] = append(out[id], issue.NewMissingTopLevel(id))
	}
	return out
}

// Merge unions content and heading findings per cell, content first.
func Merge(content, headings map[string][]issue.Issue) map[string][]issue.Issue {
	out := make(map[string][]issue.Issue, len(content)+len(headings))
	for id, issues := range content {
		out[id] = append(out[id], issues...)
	}
	for id, issues := range headings {
		out[id] = append(out[id], issues...)
	}
	for id, issues := range out {
		out[id] = issue.Dedupe(issues)
	}
	return out
}
