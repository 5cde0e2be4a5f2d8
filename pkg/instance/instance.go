package instance

import (
	"os"

	"github.com/angelmondragon/bazaar-backend/pkg/env"
)

// EnvInstanceID overrides the detected replica identifier.
const EnvInstanceID = "BAZAAR_INSTANCE_ID"

// GetID returns the replica identifier attached to worker logs. It prefers
// BAZAAR_INSTANCE_ID, then the hostname, then "<kind>-0".
func GetID(kind string) string {
	if id := env.Get(EnvInstanceID, ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if kind == "" {
		kind = "worker"
	}
	return kind + "-0"
}
