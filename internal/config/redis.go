package config

import (
	"github.com/rs/zerolog/log"
)

func GetRedisURL() string {
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		log.Debug().Msg("REDIS_URL not set, falling back to in-memory stores")
	} else {
		log.Info().Msg("Redis URL successfully loaded")
	}
	return value
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}

// GetRedisStreamGroup returns the consumer group for conversation streams.
// Empty means every live view receives every event.
func GetRedisStreamGroup() string {
	return GetEnvOrDefault("REDIS_STREAM_GROUP", "")
}

func GetRedisStreamConsumer() string {
	return GetEnvOrDefault("REDIS_STREAM_CONSUMER", "")
}
