package instance

import "os"

// GetID returns the process instance identifier used in log context:
// CARZ_INSTANCE_ID, then the platform's DYNO name, then "local".
func GetID() string {
	for _, key := range []string{"CARZ_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
