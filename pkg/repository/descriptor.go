// Package repository models repositories: a descriptor with acceptance
// policy, composed with the item store and the binary store that back it.
package repository

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Type is the kind of repository.
type Type string

const (
	// TypeLocal repositories hold deployed, authoritative artifacts.
	TypeLocal Type = "local"

	// TypeRemote repositories cache artifacts retrieved from elsewhere.
	// Their contents are derived state.
	TypeRemote Type = "remote"
)

// Descriptor is the static configuration of a repository.
type Descriptor struct {
	Key         string
	Type        Type
	Description string

	// BinaryStore names the content store holding this repository's binaries
	BinaryStore string

	// Includes and Excludes are doublestar patterns over repository paths.
	// An empty Includes accepts everything.
	Includes []string
	Excludes []string

	HandleReleases  bool
	HandleSnapshots bool

	// SuppressDescriptorConsistency disables the POM coordinate check
	SuppressDescriptorConsistency bool
}

// Validate checks the key, type and patterns.
func (d Descriptor) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("repository key is required")
	}
	switch d.Type {
	case TypeLocal, TypeRemote:
	default:
		return fmt.Errorf("repository %s: unknown type %q", d.Key, d.Type)
	}
	for _, p := range append(append([]string{}, d.Includes...), d.Excludes...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("repository %s: invalid pattern %q", d.Key, p)
		}
	}
	return nil
}
