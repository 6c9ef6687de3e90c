// Package id provides unique identifier generation for upload records.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix starts every upload ID.
const Prefix = "upl-"

// Generate creates a new unique upload ID.
// Format: upl-<unix seconds>-<12 hex chars>
// Example: upl-1701432000-a1b2c3d4e5f6
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d-%s", Prefix, time.Now().Unix(), random[:12])
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return false
	}
	ts, random, ok := strings.Cut(rest, "-")
	if !ok || ts == "" || len(random) != 12 {
		return false
	}
	for _, r := range ts {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, r := range random {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
