package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EventTransportCable = "cable"
	EventTransportRedis = "redis"
)

func GetPort() string {
	return GetEnvOrDefault("PORT", "8080")
}

// GetAPIBaseURL returns the backend REST root without a trailing slash
func GetAPIBaseURL() string {
	return strings.TrimRight(GetEnvOrDefault("API_BASE_URL", "http://localhost:3000/api/v1"), "/")
}

func GetActionCableURL() string {
	return GetEnvOrDefault("ACTION_CABLE_URL", "ws://localhost:3000/cable")
}

func GetAPITimeout() time.Duration {
	return parseEnvDuration("API_TIMEOUT", 10*time.Second)
}

func GetAPIRetryMax() int {
	return parseEnvInt("API_RETRY_MAX", 2)
}

// GetSendTimeout bounds a single message submission
func GetSendTimeout() time.Duration {
	return parseEnvDuration("SEND_TIMEOUT", 15*time.Second)
}

// GetEventTransport selects where live conversation events come from
func GetEventTransport() string {
	value := strings.ToLower(GetEnvOrDefault("EVENT_TRANSPORT", EventTransportCable))
	switch value {
	case EventTransportCable, EventTransportRedis:
		return value
	default:
		log.Warn().Str("value", value).Msg("Unknown EVENT_TRANSPORT, using cable")
		return EventTransportCable
	}
}
