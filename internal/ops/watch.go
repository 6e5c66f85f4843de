package ops

import (
	"context"
	"time"

	"github.com/hpungsan/nbaudit/internal/issue"
)

// DefaultWatchInterval is used when WatchInput.Interval is zero.
const DefaultWatchInterval = time.Second

// WatchInput contains parameters for the Watch operation.
type WatchInput struct {
	Path     string        // required, .ipynb
	Interval time.Duration // polling interval
	// OnChanges, if set, is called after each reload that found changes.
	OnChanges func(Changes)
}

// Watch audits a notebook and keeps auditing it as the file changes,
// until ctx ends. Every change to a cell's findings reaches observer.
// Returns nil when ctx is cancelled.
func Watch(ctx context.Context, e *Engine, input WatchInput, observer issue.Observer) error {
	s, err := OpenSession(e, input.Path, PathCheckRead)
	if err != nil {
		return err
	}
	if observer != nil {
		s.Controller().Registry().Subscribe(observer)
	}
	if err := s.Controller().Enable(ctx); err != nil {
		return ignoreCancel(ctx, err)
	}

	interval := input.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changes, err := s.Reload(ctx)
			if err != nil {
				return ignoreCancel(ctx, err)
			}
			if !changes.Empty() {
				e.logger.Info("watch: notebook changed",
					"path", input.Path,
					"added", len(changes.Added),
					"changed", len(changes.Changed),
					"removed", len(changes.Removed),
				)
				if input.OnChanges != nil {
					input.OnChanges(changes)
				}
			}
		}
	}
}

func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
