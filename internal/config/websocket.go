package config

import (
	"strings"
	"time"
)

func GetWSPongWait() time.Duration {
	return parseEnvDuration("WS_PONG_WAIT", 30*time.Second)
}

func GetWSWriteWait() time.Duration {
	return parseEnvDuration("WS_WRITE_WAIT", 10*time.Second)
}

// GetAllowedOrigins lists extra origins allowed to open live views.
// Same-host origins are always accepted.
func GetAllowedOrigins() []string {
	raw := GetEnvOrDefault("ALLOWED_ORIGINS", "")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
