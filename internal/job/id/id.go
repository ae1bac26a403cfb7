// Package id provides unique identifier generation for render jobs.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Prefix starts every generated ID.
const Prefix = "render-"

// Generate creates a new unique render job ID.
// Format: render-<timestamp>-<random>
// Example: render-1701432000-a1b2c3d4
//
// IDs are also used as workspace directory names, so they only contain
// characters that are safe in a path element.
func Generate() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		return fmt.Sprintf("%s%d-%d", Prefix, timestamp, time.Now().UnixNano()%1e8)
	}
	return fmt.Sprintf("%s%d-%s", Prefix, timestamp, hex.EncodeToString(random))
}
