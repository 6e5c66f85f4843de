package audit

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/issue"
	"github.com/hpungsan/nbaudit/internal/notebook"
)

// Controller keeps the findings of one document current. Events are
// serialized: one pass commits at a time.
type Controller struct {
	mu       sync.Mutex
	doc      Document
	registry *issue.Registry
	scanner  *Scanner
	logger   *slog.Logger

	enabled  bool
	content  map[string][]issue.Issue
	headings map[string][]issue.Issue
}

// NewController creates a disabled Controller for doc. Findings are
// committed to registry.
func NewController(doc Document, registry *issue.Registry, scanner *Scanner, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		doc:      doc,
		registry: registry,
		scanner:  scanner,
		logger:   logger,
		content:  make(map[string][]issue.Issue),
		headings: make(map[string][]issue.Issue),
	}
}

// Registry returns the registry findings are committed to.
func (c *Controller) Registry() *issue.Registry {
	return c.registry
}

// Enabled reports the current mode.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetDocument swaps the audited document, e.g. after reloading it from
// disk. No pass runs; callers follow up with the events the reload implies.
func (c *Controller) SetDocument(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
}

// Enable turns auditing on and rescans every cell.
func (c *Controller) Enable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enable(ctx)
}

// Disable turns auditing off and clears every finding.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disable()
}

// Toggle flips the mode and returns the new one.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		c.disable()
		return false, nil
	}
	return true, c.enable(ctx)
}

// enable and disable assume c.mu is held.
func (c *Controller) enable(ctx context.Context) error {
	c.enabled = true
	return c.fullPass(ctx)
}

func (c *Controller) disable() {
	c.enabled = false
	c.content = make(map[string][]issue.Issue)
	c.headings = make(map[string][]issue.Issue)
	c.registry.ClearAll()
}

// CellChanged rescans the content of one cell and revalidates the outline
// of the whole document. A no-op while disabled.
func (c *Controller) CellChanged(ctx context.Context, cellID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	return c.cellPass(ctx, "cell_changed", cellID)
}

// CellAdded registers a new cell and scans it like CellChanged.
func (c *Controller) CellAdded(ctx context.Context, cellID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	return c.cellPass(ctx, "cell_added", cellID)
}

// CellRemoved revalidates the outline without the removed cell and drops
// its findings.
func (c *Controller) CellRemoved(ctx context.Context, cellID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	return c.cellPass(ctx, "cell_removed", "")
}

// Revalidate recomputes the outline, e.g. after cells moved, without
// rescanning any cell content.
func (c *Controller) Revalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	return c.cellPass(ctx, "revalidate", "")
}

// InsertHeading inserts a markdown cell "# text" at the top of the document
// and scans it as an added cell. The cell is inserted even while disabled.
// When the scan fails the cell is removed again and the document is left as
// it was.
func (c *Controller) InsertHeading(ctx context.Context, text string) (notebook.Cell, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return notebook.Cell{}, errors.NewInvalidRequest("heading text is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cell := c.doc.InsertCell(0, notebook.NewMarkdownCell("# "+text))
	if !c.enabled {
		return cell, nil
	}
	if err := c.cellPass(ctx, "insert_heading", cell.ID); err != nil {
		c.doc.RemoveCell(cell.ID)
		return notebook.Cell{}, err
	}
	return cell, nil
}

// fullPass scans every cell. Caller holds c.mu.
func (c *Controller) fullPass(ctx context.Context) error {
	start := time.Now()
	cells := c.doc.Cells()

	content, err := c.scanner.Scan(ctx, c.doc.Path(), cells)
	if err != nil {
		return err
	}
	c.content = content
	c.headings = c.outline(cells)
	c.commit(cells)
	c.log("full", start, len(cells))
	return nil
}

// cellPass scans one cell, or none when cellID is empty, and recomputes the
// outline. Caller holds c.mu.
func (c *Controller) cellPass(ctx context.Context, kind, cellID string) error {
	start := time.Now()
	cells := c.doc.Cells()

	var target []notebook.Cell
	for _, cell := range cells {
		if cellID != "" && cell.ID == cellID {
			target = append(target, cell)
			break
		}
	}

	if len(target) > 0 {
		content, err := c.scanner.Scan(ctx, c.doc.Path(), target)
		if err != nil {
			return err
		}
		if issues, ok := content[cellID]; ok {
			c.content[cellID] = issues
		} else {
			delete(c.content, cellID)
		}
	}
	c.headings = c.outline(cells)
	c.commit(cells)
	c.log(kind, start, len(target))
	return nil
}

func (c *Controller) outline(cells []notebook.Cell) map[string][]issue.Issue {
	if !c.scanner.Checks().Headings {
		return map[string][]issue.Issue{}
	}
	return Outline(cells)
}

// commit writes the merged findings of every live cell and prunes the rest.
func (c *Controller) commit(cells []notebook.Cell) {
	merged := Merge(c.content, c.headings)
	live := make(map[string]bool, len(cells))
	for _, cell := range cells {
		live[cell.ID] = true
		c.registry.Set(cell.ID, merged[cell.ID])
	}

	for id := range c.content {
		if !live[id] {
			delete(c.content, id)
		}
	}
	if removed := c.registry.Prune(live); len(removed) > 0 {
		c.logger.Debug("audit: pruned findings of removed cells", "cells", removed)
	}
}

func (c *Controller) log(kind string, start time.Time, scanned int) {
	c.logger.Info("audit pass",
		"pass", newPassID(),
		"kind", kind,
		"cells", scanned,
		"issues", c.registry.Len(),
		"elapsed", time.Since(start),
	)
}

func newPassID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
