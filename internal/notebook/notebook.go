// Package notebook reads and writes Jupyter .ipynb documents (nbformat 4),
// exposing the cell view the auditor works on. Fields it does not model are
// kept verbatim and written back unchanged.
package notebook

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/nbaudit/internal/errors"
)

// Cell types.
const (
	Markdown = "markdown"
	Code     = "code"
	Raw      = "raw"
)

// Notebook is a loaded .ipynb document. Safe for concurrent use.
type Notebook struct {
	mu    sync.RWMutex
	path  string
	cells []Cell
	minor int
	raw   map[string]json.RawMessage
}

// Load reads and parses the notebook at path.
func Load(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	return Parse(data, path)
}

// Parse decodes notebook JSON. path is recorded for image resolution.
func Parse(data []byte, path string) (*Notebook, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewParseFailure("notebook", truncate(path, 80))
	}

	var major, minor int
	if v, ok := raw["nbformat"]; ok {
		_ = json.Unmarshal(v, &major)
	}
	if v, ok := raw["nbformat_minor"]; ok {
		_ = json.Unmarshal(v, &minor)
	}
	if major != 0 && major < 4 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported nbformat %d (need 4)", major))
	}

	var rawCells []json.RawMessage
	if v, ok := raw["cells"]; ok {
		if err := json.Unmarshal(v, &rawCells); err != nil {
			return nil, errors.NewParseFailure("notebook cells", truncate(path, 80))
		}
	}

	nb := &Notebook{path: path, minor: minor, raw: raw}
	for i, rc := range rawCells {
		c, err := parseCell(rc)
		if err != nil {
			return nil, errors.NewParseFailure(fmt.Sprintf("cell %d", i), truncate(string(rc), 80))
		}
		if c.ID == "" {
			c.ID = NewID()
			c.generatedID = true
		}
		nb.cells = append(nb.cells, c)
	}
	return nb, nil
}

// Path returns the notebook's path as given to Load.
func (n *Notebook) Path() string {
	return n.path
}

// Cells returns a copy of the cells in display order.
func (n *Notebook) Cells() []Cell {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Cell(nil), n.cells...)
}

// Cell returns the cell with the given id.
func (n *Notebook) Cell(id string) (Cell, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.cells {
		if c.ID == id {
			return c, true
		}
	}
	return Cell{}, false
}

// InsertCell inserts c at index, clamped to the valid range. A cell
// without an id gets one.
func (n *Notebook) InsertCell(index int, c Cell) Cell {
	if c.ID == "" {
		c.ID = NewID()
		c.generatedID = true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	index = max(0, min(index, len(n.cells)))
	n.cells = append(n.cells, Cell{})
	copy(n.cells[index+1:], n.cells[index:])
	n.cells[index] = c
	return c
}

// RemoveCell deletes the cell with the given id and reports whether it was
// present.
func (n *Notebook) RemoveCell(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, c := range n.cells {
		if c.ID == id {
			n.cells = append(n.cells[:i], n.cells[i+1:]...)
			return true
		}
	}
	return false
}

// AdoptGeneratedIDs copies session ids from prev onto cells that had no id
// on disk, matching by position, so reloading an id-less notebook keeps
// cell identity stable.
func (n *Notebook) AdoptGeneratedIDs(prev *Notebook) {
	if prev == nil {
		return
	}
	prevCells := prev.Cells()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.cells {
		if i >= len(prevCells) {
			break
		}
		if n.cells[i].generatedID && prevCells[i].generatedID {
			n.cells[i].ID = prevCells[i].ID
		}
	}
}

// Marshal encodes the notebook as indented JSON, one-space indent as
// Jupyter writes it.
func (n *Notebook) Marshal() ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	cells := make([]json.RawMessage, 0, len(n.cells))
	for _, c := range n.cells {
		// nbformat < 4.5 has no cell ids; do not invent them on disk
		data, err := c.marshal(n.minor >= 5 || !c.generatedID)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		cells = append(cells, data)
	}
	cellsJSON, err := json.Marshal(cells)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	out := make(map[string]json.RawMessage, len(n.raw)+1)
	for k, v := range n.raw {
		out[k] = v
	}
	out["cells"] = cellsJSON
	if _, ok := out["nbformat"]; !ok {
		out["nbformat"] = json.RawMessage("4")
		out["nbformat_minor"] = json.RawMessage("5")
	}
	if _, ok := out["metadata"]; !ok {
		out["metadata"] = json.RawMessage("{}")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(out); err != nil {
		return nil, errors.NewInternal(err)
	}
	return buf.Bytes(), nil
}

// Save writes the notebook to path, or to its own path when path is empty.
// The write goes through a temp file and rename.
func (n *Notebook) Save(path string) error {
	if path == "" {
		path = n.path
	}
	data, err := n.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".nbaudit-*.ipynb")
	if err != nil {
		return errors.NewInternal(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewInternal(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewInternal(err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewInternal(err)
	}
	return nil
}

// NewID returns a fresh cell id.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
