// Package prompthash computes the single prompt-content fingerprint used
// across the Audit/Session Recorder, Evaluator, and Optimizer: a 16-hex
// truncation of SHA-256, per SPEC_FULL.md §14's resolution of spec.md's
// prompt_hash ambiguity. Every caller shares this one implementation so
// the same content always hashes to the same value regardless of which
// component computed it.
package prompthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the first 16 hex characters of SHA-256(content).
func Compute(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
