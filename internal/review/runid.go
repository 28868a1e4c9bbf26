package review

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRunID generates an opaque 12-character run identifier (spec §3
// RunCheckpoint.run_id, spec §4.5 INIT), grounded on the teacher's
// preference for short opaque container/session slugs (codexContainerSlug)
// rather than a timestamp-derived one, to keep run_id unique across
// concurrent processes without relying on clock resolution.
func NewRunID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
