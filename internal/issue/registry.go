package issue

import (
	"sync"
)

// Observer is notified after a cell's issue list changes. issues is nil
// when the cell no longer has findings. Observers run synchronously on the
// goroutine that made the change and must not call back into the Registry.
type Observer interface {
	IssuesChanged(cellID string, issues []Issue)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(cellID string, issues []Issue)

// IssuesChanged calls f.
func (f ObserverFunc) IssuesChanged(cellID string, issues []Issue) {
	f(cellID, issues)
}

// Registry maps cells to their ordered, de-duplicated findings.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	cells     map[string][]Issue
	observers []Observer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cells: make(map[string][]Issue)}
}

// Subscribe registers o for change notifications.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

type change struct {
	cellID string
	issues []Issue
}

func (r *Registry) notify(changes []change) {
	r.mu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()
	for _, c := range changes {
		for _, o := range observers {
			o.IssuesChanged(c.cellID, c.issues)
		}
	}
}

// Add appends an issue to its cell unless an identical finding is present.
// Returns false for duplicates.
func (r *Registry) Add(i Issue) bool {
	r.mu.Lock()
	existing := r.cells[i.CellID]
	key := i.Key()
	for _, e := range existing {
		if e.Key() == key {
			r.mu.Unlock()
			return false
		}
	}
	updated := append(append([]Issue(nil), existing...), i)
	r.cells[i.CellID] = updated
	r.mu.Unlock()

	r.notify([]change{{i.CellID, copyIssues(updated)}})
	return true
}

// Set replaces the findings of cellID with issues, dropping duplicates and
// keeping first occurrences in order. An empty list clears the cell.
// Observers hear about it only when the rendered list actually changed.
func (r *Registry) Set(cellID string, issues []Issue) {
	deduped := Dedupe(issues)
	for k := range deduped {
		deduped[k].CellID = cellID
	}

	r.mu.Lock()
	previous := r.cells[cellID]
	if len(deduped) == 0 {
		delete(r.cells, cellID)
	} else {
		r.cells[cellID] = deduped
	}
	r.mu.Unlock()

	if !sameIssues(previous, deduped) {
		r.notify([]change{{cellID, copyIssues(deduped)}})
	}
}

// Clear removes all findings of cellID.
func (r *Registry) Clear(cellID string) {
	r.Set(cellID, nil)
}

// ClearAll removes every finding.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	var changes []change
	for id := range r.cells {
		changes = append(changes, change{cellID: id})
	}
	r.cells = make(map[string][]Issue)
	r.mu.Unlock()

	r.notify(changes)
}

// Prune removes entries for cells missing from live and returns their ids.
func (r *Registry) Prune(live map[string]bool) []string {
	r.mu.Lock()
	var removed []string
	var changes []change
	for id := range r.cells {
		if !live[id] {
			delete(r.cells, id)
			removed = append(removed, id)
			changes = append(changes, change{cellID: id})
		}
	}
	r.mu.Unlock()

	r.notify(changes)
	return removed
}

// Get returns a copy of the findings of cellID.
func (r *Registry) Get(cellID string) []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyIssues(r.cells[cellID])
}

// Snapshot returns a copy of every non-empty entry.
func (r *Registry) Snapshot() map[string][]Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]Issue, len(r.cells))
	for id, issues := range r.cells {
		out[id] = copyIssues(issues)
	}
	return out
}

// Len returns the total number of findings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, issues := range r.cells {
		n += len(issues)
	}
	return n
}

// Dedupe drops later issues whose Key repeats an earlier one.
func Dedupe(issues []Issue) []Issue {
	if len(issues) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(issues))
	out := make([]Issue, 0, len(issues))
	for _, i := range issues {
		k := i.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, i)
	}
	return out
}

func sameIssues(a, b []Issue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}

func copyIssues(issues []Issue) []Issue {
	if len(issues) == 0 {
		return nil
	}
	return append([]Issue(nil), issues...)
}
