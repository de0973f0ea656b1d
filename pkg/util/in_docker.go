package util

import "os"

// IsRunningInDocker reports whether the process runs inside a container,
// used to pick a sensible default sqlite path.
func IsRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}
