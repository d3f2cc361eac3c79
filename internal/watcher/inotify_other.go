//go:build !linux

package watcher

import "fmt"

// newInotifyBackend is a stub that should never be called on non-Linux platforms.
func newInotifyBackend() (backend, error) {
	return nil, fmt.Errorf("inotify backend not available on this platform")
}
