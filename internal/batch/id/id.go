// Package id provides unique identifier generation for batches.
package id

import "github.com/google/uuid"

// Prefix starts every batch ID.
const Prefix = "batch-"

// Generate creates a new unique batch ID.
// Format: batch-<uuid v4>
// Example: batch-5f0c8c5e-3c1b-4a8e-9a53-2a4f1f0f2b7d
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s has the shape of a generated batch ID.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
