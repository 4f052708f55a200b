package env

import (
	"os"
	"strings"
)

// Prefix namespaces the service's own variables.
const Prefix = "CARZ_"

// Get reads CARZ_<key> first, then the bare key, and falls back when both are
// blank. Values are trimmed so a stray newline in a mounted secret does not
// change behaviour.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
