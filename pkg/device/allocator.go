// Package device picks the next unused local block-device path for
// attaching a new volume.
package device

import (
	"fmt"
	"os"
)

// Exister abstracts path existence so tests can fake the device namespace
// without touching /dev.
type Exister interface {
	Exists(path string) bool
}

// OSExister probes the real filesystem namespace via os.Stat.
type OSExister struct{}

func (OSExister) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NextAvailable enumerates /dev/xvd[b-z] then /dev/xvd[b-z][a-z] and
// returns the first path that does not currently exist. It returns
// ("", false) if every candidate is taken.
//
// The allocator does not coordinate with concurrent allocators beyond this
// existence probe; the rate-limited serial execution of attachments makes
// races improbable but not impossible.
func NextAvailable(e Exister) (string, bool) {
	for c := 'b'; c <= 'z'; c++ {
		path := fmt.Sprintf("/dev/xvd%c", c)
		if !e.Exists(path) {
			return path, true
		}
	}
	for c := 'b'; c <= 'z'; c++ {
		for d := 'a'; d <= 'z'; d++ {
			path := fmt.Sprintf("/dev/xvd%c%c", c, d)
			if !e.Exists(path) {
				return path, true
			}
		}
	}
	return "", false
}
