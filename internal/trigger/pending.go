package trigger

import (
	"sort"

	"github.com/listenupapp/semodwatch/internal/processor"
)

// PendingSet holds at most one entry per module name. It is owned by the
// loop goroutine and is not safe for concurrent use.
type PendingSet struct {
	entries map[string]string
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{entries: make(map[string]string)}
}

// Add inserts name unless it is already pending. It reports whether the
// entry is new; a repeated name keeps its first directory.
func (p *PendingSet) Add(name, dir string) bool {
	if _, ok := p.entries[name]; ok {
		return false
	}
	p.entries[name] = dir
	return true
}

// Drain returns every pending module ordered by name and empties the set.
func (p *PendingSet) Drain() []processor.Module {
	modules := make([]processor.Module, 0, len(p.entries))
	for name, dir := range p.entries {
		modules = append(modules, processor.Module{Name: name, Dir: dir})
	}
	clear(p.entries)

	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return modules
}

// Len returns the number of pending modules.
func (p *PendingSet) Len() int {
	return len(p.entries)
}
