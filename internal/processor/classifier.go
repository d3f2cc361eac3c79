package processor

import (
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the suffixes of SELinux module sources: type
// enforcement, interface and file context files.
var DefaultExtensions = []string{"te", "if", "fc"}

// Module identifies a policy module with at least one changed source file.
type Module struct {
	Name string
	Dir  string
}

// ExtensionSet is an immutable set of recognised source suffixes, stored
// without the leading dot.
type ExtensionSet struct {
	exts []string
}

// NewExtensionSet creates a set from suffixes with or without a leading dot.
func NewExtensionSet(exts ...string) ExtensionSet {
	set := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(ext, ".")
		if ext != "" && !slices.Contains(set, ext) {
			set = append(set, ext)
		}
	}
	return ExtensionSet{exts: set}
}

// Contains reports whether ext, without the dot, is recognised.
func (s ExtensionSet) Contains(ext string) bool {
	return slices.Contains(s.exts, ext)
}

// List returns a copy of the suffixes.
func (s ExtensionSet) List() []string {
	return slices.Clone(s.exts)
}

// ModuleFromPath derives the module a source file belongs to. The module
// name is the file name without its final extension and the module
// directory is the file's parent.
//
// Classification rules:
//   - The file name must contain a dot.
//   - The text after the last dot must be in the set (case-sensitive).
//   - The remaining name must not be empty.
func (s ExtensionSet) ModuleFromPath(path string) (Module, bool) {
	fileName := filepath.Base(path)

	dot := strings.LastIndexByte(fileName, '.')
	if dot <= 0 {
		return Module{}, false
	}

	if !s.Contains(fileName[dot+1:]) {
		return Module{}, false
	}

	return Module{Name: fileName[:dot], Dir: filepath.Dir(path)}, true
}
