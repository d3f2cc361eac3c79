package watcher

import "path/filepath"

// Kind represents the type of change observed in a watched directory.
type Kind int

const (
	// Created is emitted when an entry appears in a watched directory.
	Created Kind = iota
	// Modified is emitted when an entry's content or attributes change.
	Modified
	// Deleted is emitted when an entry leaves a watched directory.
	Deleted
	// Overflow is emitted when the OS dropped notifications.
	Overflow
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is one change in a watched directory.
type Event struct {
	Kind Kind

	// Dir is the registered directory the change happened in.
	Dir string

	// Name is the entry name relative to Dir. Empty for Overflow.
	Name string

	// IsDir is set when the OS reported the entry as a directory.
	IsDir bool
}

// Path returns the full path of the changed entry.
func (e Event) Path() string {
	if e.Name == "" {
		return e.Dir
	}
	return filepath.Join(e.Dir, e.Name)
}

// Registration identifies one watched directory.
type Registration struct {
	// Handle is the backend's watch descriptor.
	Handle int
	Path   string
}
