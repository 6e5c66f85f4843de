// Package audit turns a notebook into per-cell accessibility findings and
// keeps them current as cells change.
//
// A Controller owns the audit mode for one document. Each event (enable,
// cell changed, cell added, ...) runs one pass: image analyses for the cells
// involved run concurrently, the heading outline is recomputed over the whole
// document, and the merged findings are committed to an issue.Registry.
package audit

import (
	"context"

	"github.com/hpungsan/nbaudit/internal/config"
	"github.com/hpungsan/nbaudit/internal/contrast"
	"github.com/hpungsan/nbaudit/internal/notebook"
	"github.com/hpungsan/nbaudit/internal/transparency"
)

// Document is the notebook a Controller audits. *notebook.Notebook
// implements it.
type Document interface {
	Cells() []notebook.Cell
	Path() string
	InsertCell(index int, c notebook.Cell) notebook.Cell
	RemoveCell(id string) bool
}

// ContrastChecker measures text contrast in one image.
type ContrastChecker interface {
	Analyze(ctx context.Context, src, docPath string) contrast.Result
}

// TransparencyChecker scores the opacity of one image.
type TransparencyChecker interface {
	Analyze(ctx context.Context, src, docPath string) transparency.Result
	Flagged(r transparency.Result) bool
}

// Checks selects which findings are produced.
type Checks struct {
	Alt          bool
	Contrast     bool
	Transparency bool
	Headings     bool
}

// AllChecks enables every check.
func AllChecks() Checks {
	return Checks{Alt: true, Contrast: true, Transparency: true, Headings: true}
}

// ChecksFromConfig applies cfg's disabled_checks.
func ChecksFromConfig(cfg *config.Config) Checks {
	if cfg == nil {
		return AllChecks()
	}
	return Checks{
		Alt:          cfg.CheckEnabled(config.CheckAlt),
		Contrast:     cfg.CheckEnabled(config.CheckContrast),
		Transparency: cfg.CheckEnabled(config.CheckTransparency),
		Headings:     cfg.CheckEnabled(config.CheckHeadings),
	}
}
