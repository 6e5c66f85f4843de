package web

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/issue"
	"github.com/hpungsan/nbaudit/internal/ops"
	"github.com/hpungsan/nbaudit/internal/report"
)

// Handlers contains HTTP route handlers for the report viewer.
type Handlers struct {
	session  *ops.Session
	logger   *slog.Logger
	renderer *Renderer
}

// current reloads the notebook if it changed on disk and returns the
// report of the result.
func (h *Handlers) current(r *http.Request) (*report.Report, error) {
	changes, err := h.session.Reload(r.Context())
	if err != nil {
		return nil, err
	}
	if !changes.Empty() {
		h.logger.Info("notebook changed on disk",
			"path", h.session.Path(),
			"added", len(changes.Added),
			"changed", len(changes.Changed),
			"removed", len(changes.Removed),
		)
	}
	return h.session.Report(), nil
}

// HandleReport handles GET /. It renders the findings of the notebook.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.current(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "report", ReportPageData{
		PageData: PageData{
			Title:   filepath.Base(h.session.Path()),
			Version: h.renderer.version,
		},
		Report:       rep,
		Enabled:      h.session.Controller().Enabled(),
		CheckedAt:    time.Now(),
		NeedsHeading: needsHeading(rep),
		Notice:       r.URL.Query().Get("notice"),
	})
}

// HandleIssues handles GET /issues. It returns the report as JSON.
func (h *Handlers) HandleIssues(w http.ResponseWriter, r *http.Request) {
	rep, err := h.current(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"enabled": h.session.Controller().Enabled(),
		"report":  rep,
	})
}

// HandleToggle handles POST /toggle. It turns auditing on or off.
func (h *Handlers) HandleToggle(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.session.Controller().Toggle(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"enabled": enabled})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleInsertHeading handles POST /headings: insert a top-level heading
// cell and save the notebook.
func (h *Handlers) HandleInsertHeading(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	cell, err := h.session.InsertHeading(r.Context(), r.FormValue("text"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Info("inserted heading", "path", h.session.Path(), "cell", cell.ID)

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"cell_id": cell.ID,
			"source":  cell.Source,
			"report":  h.session.Report(),
		})
		return
	}
	http.Redirect(w, r, "/?notice=Heading+inserted", http.StatusSeeOther)
}

// needsHeading reports whether rep flags a missing h1.
func needsHeading(rep *report.Report) bool {
	for _, c := range rep.Cells {
		for _, i := range c.Issues {
			if i.Kind == issue.MissingTopLevelHeading {
				return true
			}
		}
	}
	return false
}
