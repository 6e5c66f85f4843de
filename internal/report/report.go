// Package report renders registry findings as JSON, markdown, or HTML.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/issue"
	"github.com/hpungsan/nbaudit/internal/notebook"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Report is the findings of one notebook in display order.
type Report struct {
	Notebook string       `json:"notebook"`
	Cells    []CellReport `json:"cells"`
	Summary  Summary      `json:"summary"`
}

// CellReport lists the findings of one cell.
type CellReport struct {
	CellID string        `json:"cell_id"`
	Index  int           `json:"index"`
	Type   string        `json:"cell_type"`
	Issues []issue.Issue `json:"issues"`
}

// Summary counts findings.
type Summary struct {
	Total      int            `json:"total"`
	Errors     int            `json:"errors"`
	Warnings   int            `json:"warnings"`
	ByCategory map[string]int `json:"by_category"`
}

// Build assembles a report from a registry snapshot, ordering cells as
// they appear in cells. Snapshot entries for cells not in cells are ignored.
func Build(path string, cells []notebook.Cell, snapshot map[string][]issue.Issue) *Report {
	r := &Report{
		Notebook: path,
		Cells:    []CellReport{},
		Summary:  Summary{ByCategory: map[string]int{}},
	}
	for idx, c := range cells {
		issues := snapshot[c.ID]
		if len(issues) == 0 {
			continue
		}
		r.Cells = append(r.Cells, CellReport{CellID: c.ID, Index: idx, Type: c.Type, Issues: issues})
		for _, i := range issues {
			r.Summary.Total++
			if i.Severity() == issue.SeverityError {
				r.Summary.Errors++
			} else {
				r.Summary.Warnings++
			}
			r.Summary.ByCategory[i.Category().Name]++
		}
	}
	return r
}

// Clean reports whether there are no findings.
func (r *Report) Clean() bool {
	return r.Summary.Total == 0
}

// MarshalIndent encodes the report as indented JSON.
func (r *Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the findings grouped by category, each group with its
// guideline link.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Accessibility report: %s\n\n", escapeMarkdown(r.Notebook))
	if r.Clean() {
		b.WriteString("No accessibility issues found.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d %s (%d %s, %d %s).\n",
		r.Summary.Total, plural(r.Summary.Total, "issue", "issues"),
		r.Summary.Errors, plural(r.Summary.Errors, "error", "errors"),
		r.Summary.Warnings, plural(r.Summary.Warnings, "warning", "warnings"))

	for _, cat := range issue.Categories {
		if r.Summary.ByCategory[cat.Name] == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s See the [%s](%s).\n\n", cat.Name, cat.Summary, cat.LinkText, cat.Link)
		for _, cell := range r.Cells {
			for _, i := range cell.Issues {
				if i.Category().Name != cat.Name {
					continue
				}
				fmt.Fprintf(&b, "- Cell %d (`%s`, %s): %s", cell.Index+1, cell.CellID, i.Severity(), escapeMarkdown(i.Message()))
				if i.Source != "" {
					fmt.Fprintf(&b, " in %s", escapeMarkdown(ShortSource(i.Source)))
				}
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// htmlPolicy strips anything a notebook-controlled string could smuggle
// into the rendered markdown.
var htmlPolicy = bluemonday.UGCPolicy()

// HTMLBody renders the markdown report to sanitized HTML.
func (r *Report) HTMLBody() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(r.Markdown()), &buf); err != nil {
		return "", errors.NewInternal(err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}

// HTML renders a standalone HTML document.
func (r *Report) HTML() (string, error) {
	body, err := r.HTMLBody()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Accessibility report: %s</title>\n", htmlPolicy.Sanitize(r.Notebook))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// Write renders r to w in format.
func Write(w io.Writer, r *Report, format string) error {
	var out []byte
	switch format {
	case FormatJSON, "":
		data, err := r.MarshalIndent()
		if err != nil {
			return errors.NewInternal(err)
		}
		out = append(data, '\n')
	case FormatMarkdown:
		out = []byte(r.Markdown())
	case FormatHTML:
		s, err := r.HTML()
		if err != nil {
			return err
		}
		out = []byte(s)
	default:
		return errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (json, markdown, html)", format))
	}
	_, err := w.Write(out)
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`,
	"[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// ShortSource shortens an image source for display. Data URIs print as
// their media type.
func ShortSource(src string) string {
	if strings.HasPrefix(src, "data:") {
		if semi := strings.IndexAny(src, ";,"); semi > 0 {
			return src[:semi] + " (inline)"
		}
	}
	if len(src) > 120 {
		return src[:117] + "..."
	}
	return src
}
