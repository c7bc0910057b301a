package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/asia-ai/asia-chat/internal/config"
	"github.com/asia-ai/asia-chat/internal/infrastructure/redis"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "session:"

type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	UserID    string `json:"uid,omitempty"`
}

// Record is the server-side half of a session. The backend bearer token
// stays here and is never written into the cookie.
type Record struct {
	UserID    string    `json:"uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is a validated login
type Session struct {
	Claims *SessionClaims
	Token  string
}

type SessionStore interface {
	Set(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error
	// Get returns nil without an error for unknown sessions
	Get(ctx context.Context, sessionID string) (*Record, error)
	Delete(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	redisService *redis.Service
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	now      func() time.Time
}

type Service struct {
	store SessionStore
	now   func() time.Time
}

func NewService(redisService *redis.Service) *Service {
	var store SessionStore
	if redisService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisService.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, keeping sessions in memory")
			store = NewMemoryStore()
		} else {
			store = &RedisStore{redisService: redisService}
		}
	} else {
		store = NewMemoryStore()
	}

	return NewServiceWithStore(store)
}

func NewServiceWithStore(store SessionStore) *Service {
	return &Service{store: store, now: time.Now}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Record),
		now:      time.Now,
	}
}

// Redis Store implementation
func (rs *RedisStore) Set(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return rs.redisService.Set(ctx, keyPrefix+sessionID, string(data), ttl)
}

func (rs *RedisStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := rs.redisService.Get(ctx, keyPrefix+sessionID)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (rs *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return rs.redisService.Delete(ctx, keyPrefix+sessionID)
}

// Memory Store implementation
func (ms *MemoryStore) Set(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	stored := *record
	if ttl > 0 {
		stored.ExpiresAt = ms.now().Add(ttl)
	}
	ms.sessions[sessionID] = &stored
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	record, exists := ms.sessions[sessionID]
	if !exists {
		return nil, nil
	}
	if !record.ExpiresAt.IsZero() && ms.now().After(record.ExpiresAt) {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, sessionID)
	return nil
}

// CreateSession stores the backend token and sets the signed session cookie
func (s *Service) CreateSession(ctx context.Context, w http.ResponseWriter, userID, backendToken string) error {
	lifetime := config.GetSessionLifetime()
	now := s.now()

	sessionID := uuid.New().String()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        sessionID,
		},
		SessionID: sessionID,
		UserID:    userID,
	}

	record := &Record{UserID: userID, Token: backendToken, ExpiresAt: now.Add(lifetime)}
	if err := s.store.Set(ctx, sessionID, record, lifetime); err != nil {
		return err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(config.GetSessionSecret())
	if err != nil {
		return err
	}

	http.SetCookie(w, s.cookie(signedToken, now.Add(lifetime)))
	return nil
}

// ValidateSession returns the session behind the request cookie, or nil when
// there is none, it was cleared, or the backend token has expired.
func (s *Service) ValidateSession(r *http.Request) (*Session, error) {
	ctx := r.Context()

	claims, err := s.parseCookie(r)
	if err != nil || claims == nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if TokenExpired(record.Token, s.now()) {
		log.Debug().Str("session_id", claims.SessionID).Msg("Backend token expired, dropping session")
		_ = s.store.Delete(ctx, claims.SessionID)
		return nil, nil
	}

	return &Session{Claims: claims, Token: record.Token}, nil
}

// ClearSession removes the session from storage, expires the cookie and
// returns the backend token that was attached to it, if any.
func (s *Service) ClearSession(w http.ResponseWriter, r *http.Request) string {
	ctx := r.Context()

	var backendToken string
	if claims, err := s.parseCookie(r); err == nil && claims != nil {
		if record, err := s.store.Get(ctx, claims.SessionID); err == nil && record != nil {
			backendToken = record.Token
		}
		_ = s.store.Delete(ctx, claims.SessionID)
	}

	http.SetCookie(w, s.cookie("", s.now().Add(-1*time.Hour)))
	return backendToken
}

func (s *Service) parseCookie(r *http.Request) (*SessionClaims, error) {
	cookie, err := r.Cookie(config.GetSessionCookieName())
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(cookie.Value, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetSessionSecret(), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, nil
}

func (s *Service) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     config.GetSessionCookieName(),
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   config.GetCookieSecure(),
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
}

// TokenExpired decodes the backend JWT without verifying it and reports
// whether its exp claim lies in the past. Tokens that cannot be decoded count as expired.
func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return true
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return now.After(claims.ExpiresAt.Time)
}
