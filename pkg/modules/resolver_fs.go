package modules

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolver maps import specifiers to canonical paths and reads their
// content. The loader deduplicates by the canonical path, so a resolver
// must return the same path for the same module regardless of referrer.
type Resolver interface {
	Resolve(referrerDir, specifier string) (string, error)
	ReadFile(path string) (string, error)
}

// FileSystemResolver resolves relative specifiers against the referring
// module's directory and bare specifiers against a base directory.
type FileSystemResolver struct {
	Base string
}

// NewFileSystemResolver creates a resolver rooted at base.
func NewFileSystemResolver(base string) *FileSystemResolver {
	return &FileSystemResolver{Base: base}
}

func (r *FileSystemResolver) Resolve(referrerDir, specifier string) (string, error) {
	var candidate string
	if filepath.IsAbs(specifier) {
		candidate = specifier
	} else if referrerDir != "" && (len(specifier) > 0 && specifier[0] == '.') {
		candidate = filepath.Join(referrerDir, specifier)
	} else {
		candidate = filepath.Join(r.Base, specifier)
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		// Retry with the .js and .mjs extensions.
		for _, ext := range []string{".js", ".mjs"} {
			if _, err2 := os.Stat(abs + ext); err2 == nil {
				return abs + ext, nil
			}
		}
		return "", fmt.Errorf("cannot resolve module %q: %w", specifier, err)
	}
	return abs, nil
}

func (r *FileSystemResolver) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MemoryResolver serves modules from an in-memory map; tests use it.
type MemoryResolver struct {
	Files map[string]string
}

func (r *MemoryResolver) Resolve(referrerDir, specifier string) (string, error) {
	if _, ok := r.Files[specifier]; !ok {
		return "", fmt.Errorf("cannot resolve module %q", specifier)
	}
	return specifier, nil
}

func (r *MemoryResolver) ReadFile(path string) (string, error) {
	content, ok := r.Files[path]
	if !ok {
		return "", fmt.Errorf("no such module %q", path)
	}
	return content, nil
}
