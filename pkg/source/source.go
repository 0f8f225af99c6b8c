package source

import (
	"path/filepath"
	"strings"
)

// SourceFile represents a unit of script source with its display metadata.
// Positions recorded in bytecode source maps and stack traces point back here.
type SourceFile struct {
	Name     string // Display name (e.g. "script.js", "<shell>", "<eval>")
	Path     string // Full file path (empty for shell/eval input)
	Content  string // The source text
	IsModule bool   // Parsed with module-goal grammar
	lines    []string
}

// New creates a source file with an explicit display name.
func New(name, path, content string) *SourceFile {
	return &SourceFile{Name: name, Path: path, Content: content}
}

// FromFile creates a SourceFile for a file path and its content.
func FromFile(path, content string) *SourceFile {
	return &SourceFile{Name: filepath.Base(path), Path: path, Content: content}
}

// NewEvalSource creates a source file for -e / eval input.
func NewEvalSource(content string) *SourceFile {
	return &SourceFile{Name: "<eval>", Content: content}
}

// NewShellSource creates a source file for one line of interactive input.
func NewShellSource(content string) *SourceFile {
	return &SourceFile{Name: "<shell>", Content: content}
}

// Lines returns the source split into lines (cached).
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name).
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile reports whether this source came from an actual file.
func (sf *SourceFile) IsFile() bool { return sf.Path != "" }
