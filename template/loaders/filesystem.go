// Package loaders provides template source loaders: an ordered
// filesystem search path and a compiled-template cache with optional
// filesystem-change invalidation.
package loaders

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/tango/template"
)

// Filesystem loads template source from an ordered list of directories.
// The first directory containing the named file wins. Names are always
// relative to a search directory; absolute names and names that step
// outside every search directory are rejected.
type Filesystem struct {
	dirs []string
}

// NewFilesystem builds a loader over the given directories, searched in
// order. Empty entries are dropped; with no directories the current
// directory is searched.
func NewFilesystem(dirs ...string) *Filesystem {
	kept := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		kept = append(kept, dir)
	}
	if len(kept) == 0 {
		kept = []string{"."}
	}
	return &Filesystem{dirs: kept}
}

// Dirs returns a copy of the search directories.
func (l *Filesystem) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// Load implements template.Loader.
func (l *Filesystem) Load(name string) (string, template.Origin, error) {
	if err := validateName(name); err != nil {
		return "", template.Origin{}, err
	}

	tried := make([]string, 0, len(l.dirs))
	for _, dir := range l.dirs {
		full, err := securePath(dir, name)
		if err != nil {
			return "", template.Origin{}, err
		}
		tried = append(tried, full)

		data, err := os.ReadFile(full)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", template.Origin{}, err
		}
		return string(data), template.Origin{Name: full}, nil
	}
	return "", template.Origin{}, &template.TemplateDoesNotExist{Name: name, Tried: tried}
}

// validateName rejects template names that could address files outside
// the search directories.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty template name")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("absolute template name not allowed: %s", name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("template name contains directory traversal: %s", name)
	}
	return nil
}

// securePath joins name onto dir and verifies the result stays inside
// dir once symlink-free path elements are resolved.
func securePath(dir, name string) (string, error) {
	full := filepath.Join(dir, name)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if absFull != absDir && !strings.HasPrefix(absFull, absDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("template name %q escapes search directory %q", name, dir)
	}
	return full, nil
}
