package instance

import "os"

// GetID identifies this process in logs: SAGA_INSTANCE_ID, then the container
// hostname, then "local".
func GetID() string {
	if id := os.Getenv("SAGA_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
