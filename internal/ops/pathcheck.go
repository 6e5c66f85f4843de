package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/nbaudit/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // audit (read notebook)
	PathCheckWrite                      // insert heading (rewrite notebook)
)

// NotebookExt is the required notebook file extension.
const NotebookExt = ".ipynb"

// ValidatePath checks a notebook path and returns it absolute and cleaned.
// It checks:
// 1. Extension (.ipynb required)
// 2. The path names an existing regular file
// 3. For writes, the file is not a symlink (the rewrite would replace the link)
func ValidatePath(path string, mode PathCheckMode) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest("path is required")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), NotebookExt) {
		return "", errors.NewInvalidRequest("path must have .ipynb extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound(path)
		}
		return "", errors.NewInternal(err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if mode == PathCheckWrite {
			return "", errors.NewInvalidRequest("path must not be a symlink")
		}
		// Reads follow the link
		if info, err = os.Stat(absPath); err != nil {
			return "", errors.NewNotFound(path)
		}
	}

	if info.IsDir() {
		return "", errors.NewInvalidRequest("path is a directory")
	}
	return absPath, nil
}
