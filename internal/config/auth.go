package config

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultSessionSecret = "default-secret"

var (
	sessionSecretMu sync.RWMutex
	// SessionSecret signs the session cookie
	SessionSecret = []byte(GetEnvOrDefault("SESSION_SECRET", defaultSessionSecret))
)

// SetSessionSecret temporarily changes the session secret and returns a function to restore it
// This is primarily used for testing
func SetSessionSecret(secret []byte) func() {
	sessionSecretMu.Lock()
	previous := SessionSecret
	SessionSecret = secret
	sessionSecretMu.Unlock()

	return func() {
		sessionSecretMu.Lock()
		SessionSecret = previous
		sessionSecretMu.Unlock()
	}
}

// GetSessionSecret returns the current session secret in a thread-safe manner
func GetSessionSecret() []byte {
	sessionSecretMu.RLock()
	defer sessionSecretMu.RUnlock()
	if IsProduction() && string(SessionSecret) == defaultSessionSecret {
		log.Warn().Msg("SESSION_SECRET is not set, falling back to the development secret")
	}
	return SessionSecret
}

// IsProduction reports whether APP_ENV is production
func IsProduction() bool {
	return GetEnvOrDefault("APP_ENV", "development") == "production"
}
