// Package diagnostics collects template problems found during batch
// compile checks so the CLI can report them all at once instead of
// stopping at the first bad file.
package diagnostics

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/tango/template"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is one problem in one file.
type Diagnostic struct {
	File     string   `json:"file" yaml:"file"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"` // 1-based, 0 if unknown
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"-" yaml:"-"`
}

// String renders the diagnostic in file:line: message form.
func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.File, d.Severity, d.Message)
}

// Collector accumulates diagnostics from concurrent checks.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records a diagnostic.
func (c *Collector) Add(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, d)
}

// AddError records err against file at error severity, pulling the
// source line out of template syntax errors when present.
func (c *Collector) AddError(file string, err error) {
	if err == nil {
		return
	}
	d := Diagnostic{File: file, Message: err.Error(), Severity: SeverityError}
	var syntaxErr *template.SyntaxError
	if errors.As(err, &syntaxErr) {
		d.Line = syntaxErr.Line
	}
	c.Add(d)
}

// AddWarning records a warning against file.
func (c *Collector) AddWarning(file string, line int, message string) {
	c.Add(Diagnostic{File: file, Line: line, Message: message, Severity: SeverityWarning})
}

// Items returns the collected diagnostics ordered by file and line.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Diagnostic, len(c.items))
	copy(result, c.items)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].File != result[j].File {
			return result[i].File < result[j].File
		}
		return result[i].Line < result[j].Line
	})
	return result
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len reports the number of recorded diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
