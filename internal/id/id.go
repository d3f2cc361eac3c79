// Package id generates short prefixed identifiers used to correlate log lines.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CyclePrefix prefixes identifiers of build trigger cycles.
const CyclePrefix = "cyc"

// idLength keeps identifiers readable in plain-text logs.
const idLength = 12

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "cyc-V1StGXR8_Z5j").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New(idLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// Cycle returns an identifier for one trigger cycle. Entropy failures fall
// back to a fixed marker rather than stopping the cycle.
func Cycle() string {
	id, err := Generate(CyclePrefix)
	if err != nil {
		return CyclePrefix + "-unknown"
	}
	return id
}
