package ops

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hpungsan/nbaudit/internal/audit"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/notebook"
	"github.com/hpungsan/nbaudit/internal/report"
)

// Session is one notebook on disk under audit. Safe for concurrent use.
type Session struct {
	engine *Engine
	path   string // as given, for display
	abs    string

	mu      sync.Mutex
	nb      *notebook.Notebook
	ctrl    *audit.Controller
	modTime time.Time
	size    int64
}

// OpenSession loads the notebook at path. Auditing starts disabled.
func OpenSession(e *Engine, path string, mode PathCheckMode) (*Session, error) {
	abs, err := ValidatePath(path, mode)
	if err != nil {
		return nil, err
	}
	nb, err := notebook.Load(abs)
	if err != nil {
		return nil, err
	}
	s := &Session{engine: e, path: path, abs: abs, nb: nb, ctrl: e.NewController(nb)}
	s.stamp()
	return s, nil
}

// Path returns the notebook path as given to OpenSession.
func (s *Session) Path() string {
	return s.path
}

// Controller returns the audit controller.
func (s *Session) Controller() *audit.Controller {
	return s.ctrl
}

// Notebook returns the current document.
func (s *Session) Notebook() *notebook.Notebook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nb
}

// Report builds a report from the current findings.
func (s *Session) Report() *report.Report {
	nb := s.Notebook()
	return report.Build(s.path, nb.Cells(), s.ctrl.Registry().Snapshot())
}

// InsertHeading inserts a top-level heading cell and saves the notebook.
func (s *Session) InsertHeading(ctx context.Context, text string) (notebook.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, err := os.Lstat(s.abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return notebook.Cell{}, errors.NewInvalidRequest("path must not be a symlink")
	}

	cell, err := s.ctrl.InsertHeading(ctx, text)
	if err != nil {
		return notebook.Cell{}, err
	}
	if err := s.nb.Save(s.abs); err != nil {
		return cell, err
	}
	s.stamp()
	return cell, nil
}

// Reload re-reads the notebook if it changed on disk and feeds the cell
// differences to the controller. A notebook that fails to parse (e.g. while
// it is being written) is skipped until the next call.
func (s *Session) Reload(ctx context.Context) (Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Changes{}, errors.NewNotFound(s.path)
		}
		return Changes{}, errors.NewInternal(err)
	}
	if info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return Changes{}, nil
	}

	next, err := notebook.Load(s.abs)
	if err != nil {
		s.engine.logger.Warn("watch: notebook unreadable, will retry", "path", s.path, "error", err)
		return Changes{}, nil
	}
	s.modTime, s.size = info.ModTime(), info.Size()

	next.AdoptGeneratedIDs(s.nb)
	changes := DiffCells(s.nb.Cells(), next.Cells())
	s.nb = next
	s.ctrl.SetDocument(next)

	for _, id := range changes.Removed {
		if err := s.ctrl.CellRemoved(ctx, id); err != nil {
			return changes, err
		}
	}
	for _, id := range changes.Added {
		if err := s.ctrl.CellAdded(ctx, id); err != nil {
			return changes, err
		}
	}
	for _, id := range changes.Changed {
		if err := s.ctrl.CellChanged(ctx, id); err != nil {
			return changes, err
		}
	}
	if changes.Reordered && len(changes.Removed)+len(changes.Added)+len(changes.Changed) == 0 {
		if err := s.ctrl.Revalidate(ctx); err != nil {
			return changes, err
		}
	}
	return changes, nil
}

// stamp records the file's current size and modification time. Caller holds
// s.mu or owns s exclusively.
func (s *Session) stamp() {
	if info, err := os.Stat(s.abs); err == nil {
		s.modTime, s.size = info.ModTime(), info.Size()
	}
}

// Changes lists cell ids that differ between two versions of a notebook.
type Changes struct {
	Added     []string `json:"added,omitempty"`
	Changed   []string `json:"changed,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Reordered bool     `json:"reordered,omitempty"` // surviving cells moved
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0 && !c.Reordered
}

// DiffCells compares cells by id. A cell changed when its type, source, or
// rendered outputs differ.
func DiffCells(prev, next []notebook.Cell) Changes {
	before := make(map[string]notebook.Cell, len(prev))
	for _, c := range prev {
		before[c.ID] = c
	}

	var ch Changes
	seen := make(map[string]bool, len(next))
	for _, c := range next {
		seen[c.ID] = true
		old, ok := before[c.ID]
		switch {
		case !ok:
			ch.Added = append(ch.Added, c.ID)
		case old.Type != c.Type || old.Source != c.Source || old.OutputHTML() != c.OutputHTML():
			ch.Changed = append(ch.Changed, c.ID)
		}
	}
	var kept []string
	for _, c := range prev {
		if !seen[c.ID] {
			ch.Removed = append(ch.Removed, c.ID)
		} else {
			kept = append(kept, c.ID)
		}
	}
	i := 0
	for _, c := range next {
		if _, ok := before[c.ID]; !ok {
			continue
		}
		if i >= len(kept) || kept[i] != c.ID {
			ch.Reordered = true
			break
		}
		i++
	}
	return ch
}
