package instance

import (
	"os"
	"strings"
)

// ID names the running process for logs. Platform dyno names win over the
// container hostname.
func ID() string {
	for _, key := range []string{"DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
