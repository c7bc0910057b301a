package config

import "time"

var (
	// SessionCookieName is the name of the session cookie
	// Default to "asia_ai_session" if not set in environment
	SessionCookieName = GetEnvOrDefault("SESSION_COOKIE_NAME", "asia_ai_session")
)

// GetSessionCookieName returns the configured session cookie name
func GetSessionCookieName() string {
	return SessionCookieName
}

// SetSessionCookieName temporarily changes the session cookie name and returns a function to restore it
// This is primarily used for testing
func SetSessionCookieName(name string) func() {
	previous := SessionCookieName
	SessionCookieName = name

	return func() {
		SessionCookieName = previous
	}
}

// GetSessionLifetime returns how long a login stays valid, 7 days by default
func GetSessionLifetime() time.Duration {
	return parseEnvDuration("SESSION_LIFETIME", 7*24*time.Hour)
}

// GetCookieSecure reports whether session cookies carry the Secure flag
func GetCookieSecure() bool {
	return parseEnvBool("COOKIE_SECURE", IsProduction())
}
