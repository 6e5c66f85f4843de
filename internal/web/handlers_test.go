package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/nbaudit/internal/config"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/ops"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeNotebook writes markdown cells given as id, source pairs.
func writeNotebook(t *testing.T, path string, pairs ...string) {
	t.Helper()
	var cells []string
	for i := 0; i+1 < len(pairs); i += 2 {
		src, _ := json.Marshal(pairs[i+1])
		cells = append(cells, fmt.Sprintf(`{"id":%q,"cell_type":"markdown","metadata":{},"source":%s}`, pairs[i], src))
	}
	doc := `{"nbformat":4,"nbformat_minor":5,"metadata":{},"cells":[` + strings.Join(cells, ",") + `]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write notebook: %v", err)
	}
}

// setupTest opens a session on a notebook with one missing alt and no h1,
// and returns the server handler and the notebook path.
func setupTest(t *testing.T) (http.Handler, *ops.Session, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ContrastStrategy = config.StrategyPalette
	e, err := ops.NewEngine(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	path := filepath.Join(t.TempDir(), "analysis.ipynb")
	writeNotebook(t, path,
		"intro", "## Intro\n![](chart.png)",
		"notes", "Some notes.",
	)
	s, err := ops.OpenSession(e, path, ops.PathCheckWrite)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	srv, err := NewServer(s, quietLogger(), "test", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.Handler, s, path
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleReport_Disabled(t *testing.T) {
	h, _, _ := setupTest(t)

	rec := do(t, h, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Auditing is off") {
		t.Error("expected the page to show auditing is off")
	}
	if strings.Contains(body, "Missing Alt Tag") {
		t.Error("no findings should be shown while disabled")
	}
}

func TestHandleToggle(t *testing.T) {
	h, s, _ := setupTest(t)

	rec := do(t, h, httptest.NewRequest("POST", "/toggle", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if !s.Controller().Enabled() {
		t.Fatal("expected auditing to be enabled")
	}

	body := do(t, h, httptest.NewRequest("GET", "/", nil)).Body.String()
	for _, want := range []string{
		"Auditing is on",
		"Cell Error: Missing Alt Tag",
		"Header format: Missing h1 header",
		"Cell 1",
		`action="/headings"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report page missing %q", want)
		}
	}

	req := httptest.NewRequest("POST", "/toggle", nil)
	req.Header.Set("Accept", "application/json")
	rec = do(t, h, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["enabled"] != false {
		t.Errorf("enabled = %v, want false", out["enabled"])
	}
	if n := s.Controller().Registry().Len(); n != 0 {
		t.Errorf("registry has %d findings after disabling, want 0", n)
	}
}

func TestHandleIssues(t *testing.T) {
	h, s, _ := setupTest(t)
	if err := s.Controller().Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	rec := do(t, h, httptest.NewRequest("GET", "/issues", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var out struct {
		Enabled bool `json:"enabled"`
		Report  struct {
			Cells []struct {
				CellID string `json:"cell_id"`
				Issues []struct {
					Kind string `json:"kind"`
				} `json:"issues"`
			} `json:"cells"`
		} `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Enabled {
		t.Error("expected enabled=true")
	}
	if len(out.Report.Cells) != 1 || out.Report.Cells[0].CellID != "intro" {
		t.Fatalf("cells = %+v, want only intro", out.Report.Cells)
	}
	if got := out.Report.Cells[0].Issues[0].Kind; got != "missing_alt" {
		t.Errorf("first kind = %q, want missing_alt", got)
	}
}

func TestHandleReport_ReloadsEditedNotebook(t *testing.T) {
	h, s, path := setupTest(t)
	if err := s.Controller().Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	writeNotebook(t, path, "intro", "# Intro\n![a chart](chart.png)")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	body := do(t, h, httptest.NewRequest("GET", "/", nil)).Body.String()
	if !strings.Contains(body, "No accessibility issues found.") {
		t.Errorf("expected the fixed notebook to be clean, got:\n%s", body)
	}
}

func TestHandleInsertHeading(t *testing.T) {
	h, s, path := setupTest(t)
	if err := s.Controller().Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	form := url.Values{"text": {"Analysis"}}
	req := httptest.NewRequest("POST", "/headings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(t, h, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303: %s", rec.Code, rec.Body.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read notebook: %v", err)
	}
	if !strings.Contains(string(data), "# Analysis") {
		t.Error("heading was not saved")
	}

	body := do(t, h, httptest.NewRequest("GET", "/?notice=Heading+inserted", nil)).Body.String()
	if strings.Contains(body, "Missing h1") {
		t.Error("missing h1 finding should be gone")
	}
	if strings.Contains(body, `action="/headings"`) {
		t.Error("insert form should be hidden once an h1 exists")
	}
	if !strings.Contains(body, "Heading inserted") {
		t.Error("expected the notice to be shown")
	}
}

func TestHandleInsertHeading_EmptyText(t *testing.T) {
	h, _, path := setupTest(t)
	before, _ := os.ReadFile(path)

	req := httptest.NewRequest("POST", "/headings", strings.NewReader("text="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := do(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var out map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["error"]["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %v, want INVALID_REQUEST", out["error"]["code"])
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("notebook should be unchanged")
	}
}

func TestHandleReport_NotebookDeleted(t *testing.T) {
	h, _, path := setupTest(t)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	rec := do(t, h, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error 404") {
		t.Error("expected the error page")
	}
}

func TestRenderError_InternalHidesMessage(t *testing.T) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	r := NewRenderer(sub, "test", quietLogger())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	r.renderError(rec, req, errors.NewInternal(fmt.Errorf("open /secret/cache.db: permission denied")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("internal details leaked: %s", rec.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	h, _, _ := setupTest(t)
	rec := do(t, h, httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'self'") {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h, _, _ := setupTest(t)
	rec := do(t, h, httptest.NewRequest("GET", "/toggle", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /toggle status = %d, want 405", rec.Code)
	}
}
