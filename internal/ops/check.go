package ops

import (
	"context"

	"github.com/hpungsan/nbaudit/internal/report"
)

// CheckInput contains parameters for the Check operation.
type CheckInput struct {
	Path string // required, .ipynb
}

// Check audits every cell of a notebook once.
func Check(ctx context.Context, e *Engine, input CheckInput) (*report.Report, error) {
	s, err := OpenSession(e, input.Path, PathCheckRead)
	if err != nil {
		return nil, err
	}
	if err := s.Controller().Enable(ctx); err != nil {
		return nil, err
	}
	return s.Report(), nil
}

// InsertHeadingInput contains parameters for the InsertHeading operation.
type InsertHeadingInput struct {
	Path string // required, .ipynb
	Text string // required
}

// InsertHeadingOutput contains the result of the InsertHeading operation.
type InsertHeadingOutput struct {
	CellID string         `json:"cell_id"`
	Source string         `json:"source"`
	Report *report.Report `json:"report"`
}

// InsertHeading adds a top-level heading cell at the start of the notebook,
// saves it, and returns the audit of the result.
func InsertHeading(ctx context.Context, e *Engine, input InsertHeadingInput) (*InsertHeadingOutput, error) {
	s, err := OpenSession(e, input.Path, PathCheckWrite)
	if err != nil {
		return nil, err
	}
	if err := s.Controller().Enable(ctx); err != nil {
		return nil, err
	}
	cell, err := s.InsertHeading(ctx, input.Text)
	if err != nil {
		return nil, err
	}
	return &InsertHeadingOutput{CellID: cell.ID, Source: cell.Source, Report: s.Report()}, nil
}
