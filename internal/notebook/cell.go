package notebook

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

// Cell is one notebook cell.
type Cell struct {
	ID      string
	Type    string
	Source  string
	Outputs []Output

	// raw holds every field as read, for round-tripping.
	raw          map[string]json.RawMessage
	sourceAsList bool
	generatedID  bool
}

// NewMarkdownCell creates a markdown cell with a fresh session id, written
// to disk only when the notebook format supports cell ids.
func NewMarkdownCell(source string) Cell {
	return Cell{ID: NewID(), Type: Markdown, Source: source, generatedID: true}
}

// IsMarkdown reports whether the cell is a markdown cell.
func (c Cell) IsMarkdown() bool { return c.Type == Markdown }

// IsCode reports whether the cell is a code cell.
func (c Cell) IsCode() bool { return c.Type == Code }

// Output is one code-cell output. Data maps MIME types to their content for
// display_data and execute_result outputs.
type Output struct {
	OutputType string
	Data       map[string]string
}

// OutputHTML renders the cell outputs as the notebook UI would show them:
// text/html verbatim, SVG inline, other images as data-URI img elements
// without alt text. Text-only outputs produce nothing.
func (c Cell) OutputHTML() string {
	var b strings.Builder
	for _, o := range c.Outputs {
		if h, ok := o.Data["text/html"]; ok {
			b.WriteString(h)
			b.WriteString("\n")
			continue
		}
		if svg, ok := o.Data["image/svg+xml"]; ok {
			b.WriteString(svg)
			b.WriteString("\n")
			continue
		}
		for _, mime := range sortedImageTypes(o.Data) {
			payload := strings.Join(strings.Fields(o.Data[mime]), "")
			fmt.Fprintf(&b, "<img src=\"data:%s;base64,%s\">\n", html.EscapeString(mime), html.EscapeString(payload))
			break
		}
	}
	return b.String()
}

func sortedImageTypes(data map[string]string) []string {
	var types []string
	for mime := range data {
		if strings.HasPrefix(mime, "image/") && mime != "image/svg+xml" {
			types = append(types, mime)
		}
	}
	// Prefer png like the notebook renderer does
	sort.Slice(types, func(i, j int) bool {
		if (types[i] == "image/png") != (types[j] == "image/png") {
			return types[i] == "image/png"
		}
		return types[i] < types[j]
	})
	return types
}

// multiline decodes nbformat's "string or list of strings" fields.
func multiline(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, false, nil
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", false, err
	}
	return strings.Join(parts, ""), true, nil
}

// splitLines is the inverse of joining a source list: each line keeps its
// trailing newline.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func parseCell(data json.RawMessage) (Cell, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Cell{}, err
	}

	c := Cell{raw: raw}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &c.ID); err != nil {
			return Cell{}, err
		}
	}
	if v, ok := raw["cell_type"]; ok {
		if err := json.Unmarshal(v, &c.Type); err != nil {
			return Cell{}, err
		}
	}
	src, asList, err := multiline(raw["source"])
	if err != nil {
		return Cell{}, err
	}
	c.Source, c.sourceAsList = src, asList

	if v, ok := raw["outputs"]; ok && c.Type == Code {
		outputs, err := parseOutputs(v)
		if err != nil {
			return Cell{}, err
		}
		c.Outputs = outputs
	}
	return c, nil
}

func parseOutputs(data json.RawMessage) ([]Output, error) {
	var rawOutputs []struct {
		OutputType string                     `json:"output_type"`
		Data       map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &rawOutputs); err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(rawOutputs))
	for _, ro := range rawOutputs {
		o := Output{OutputType: ro.OutputType}
		if len(ro.Data) > 0 {
			o.Data = make(map[string]string, len(ro.Data))
			for mime, v := range ro.Data {
				s, _, err := multiline(v)
				if err != nil {
					// application/json and friends carry objects; not markup
					continue
				}
				o.Data[mime] = s
			}
		}
		outputs = append(outputs, o)
	}
	return outputs, nil
}

// marshal writes the cell back, overlaying the modeled fields on the raw ones.
func (c Cell) marshal(withID bool) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(c.raw)+4)
	for k, v := range c.raw {
		out[k] = v
	}

	set := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = data
		return nil
	}

	if withID {
		if err := set("id", c.ID); err != nil {
			return nil, err
		}
	} else {
		delete(out, "id")
	}
	if err := set("cell_type", c.Type); err != nil {
		return nil, err
	}
	var source any = c.Source
	if c.sourceAsList || c.raw == nil {
		source = splitLines(c.Source)
	}
	if err := set("source", source); err != nil {
		return nil, err
	}
	if _, ok := out["metadata"]; !ok {
		out["metadata"] = json.RawMessage("{}")
	}
	if c.Type == Code {
		if _, ok := out["outputs"]; !ok {
			out["outputs"] = json.RawMessage("[]")
		}
		if _, ok := out["execution_count"]; !ok {
			out["execution_count"] = json.RawMessage("null")
		}
	}
	return json.Marshal(out)
}
