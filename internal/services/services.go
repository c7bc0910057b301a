package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/asia-ai/asia-chat/internal/config"
	"github.com/asia-ai/asia-chat/internal/connections"
	domain "github.com/asia-ai/asia-chat/internal/domain/chat"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/internal/infrastructure/backend"
	"github.com/asia-ai/asia-chat/internal/infrastructure/cable"
	"github.com/asia-ai/asia-chat/internal/infrastructure/pubsub"
	"github.com/asia-ai/asia-chat/internal/infrastructure/redis"
	"github.com/asia-ai/asia-chat/internal/services/chat"
	"github.com/asia-ai/asia-chat/internal/services/session"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

// TransportFactory returns the live event transport for a backend token
type TransportFactory func(token string) domain.Transport

type Services struct {
	backendClient     *backend.Client
	redisService      *redis.Service
	sessionService    *session.Service
	connectionManager *connections.Manager
	transports        TransportFactory
	closers           []func() error
}

// InitializeServices initializes all required services
func InitializeServices() (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	backendClient := backend.NewClient(config.GetAPIBaseURL(),
		backend.WithTimeout(config.GetAPITimeout()),
		backend.WithRetryMax(config.GetAPIRetryMax()),
	)
	log.Info().Str("base_url", config.GetAPIBaseURL()).Msg("Initializing backend client")

	// Initialize Redis service (optional)
	redisService := redis.NewService()
	log.Info().Bool("available", redisService != nil).Msg("Initializing Redis service")

	// Initialize session service with optional Redis
	sessionService := session.NewService(redisService)
	log.Info().Msg("Initializing session service")

	svc := &Services{
		backendClient:     backendClient,
		redisService:      redisService,
		sessionService:    sessionService,
		connectionManager: connections.NewManager(connections.TimeoutsFromConfig()),
	}
	if redisService != nil {
		svc.closers = append(svc.closers, redisService.Close)
	}

	transports, err := svc.newTransportFactory(config.GetEventTransport())
	if err != nil {
		_ = svc.Close()
		log.Error().Err(err).Msg("Failed to initialize event transport - required for live updates")
		return nil, fmt.Errorf("failed to initialize event transport: %w", err)
	}
	svc.transports = transports

	log.Info().Msg("All services initialized successfully")
	return svc, nil
}

// New assembles Services from ready-made parts
func New(backendClient *backend.Client, sessionService *session.Service, transports TransportFactory) *Services {
	return &Services{
		backendClient:     backendClient,
		sessionService:    sessionService,
		connectionManager: connections.NewManager(connections.DefaultTimeouts),
		transports:        transports,
	}
}

func (s *Services) newTransportFactory(kind string) (TransportFactory, error) {
	switch kind {
	case config.EventTransportRedis:
		if s.redisService == nil {
			return nil, errors.New("EVENT_TRANSPORT=redis requires a reachable REDIS_URL")
		}
		subscriber, err := pubsub.NewRedisSubscriber(s.redisService.Client(), pubsub.RedisSettings{
			ConsumerGroup: config.GetRedisStreamGroup(),
			Consumer:      config.GetRedisStreamConsumer(),
		})
		if err != nil {
			return nil, err
		}
		transport := pubsub.NewTransport(subscriber)
		s.closers = append([]func() error{transport.Close}, s.closers...)
		log.Info().Msg("Live updates via Redis Streams")
		return func(string) domain.Transport { return transport }, nil

	default:
		url := config.GetActionCableURL()
		log.Info().Str("url", url).Msg("Live updates via ActionCable")
		return CableTransports(url), nil
	}
}

// CableTransports opens one authenticated ActionCable client per token
func CableTransports(url string) TransportFactory {
	return func(token string) domain.Transport {
		return cable.NewClient(url, cable.WithToken(token))
	}
}

// SubscriberTransports shares a single watermill subscriber between all tokens
func SubscriberTransports(subscriber message.Subscriber) TransportFactory {
	transport := pubsub.NewTransport(subscriber)
	return func(string) domain.Transport { return transport }
}

// GetBackendClient returns the REST client for the backend
func (s *Services) GetBackendClient() *backend.Client {
	return s.backendClient
}

// GetSessionService returns the session service
func (s *Services) GetSessionService() *session.Service {
	return s.sessionService
}

// GetConnectionManager returns the live view connection registry
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connectionManager
}

// Persister submits messages to the backend on behalf of token
func (s *Services) Persister(token string) domain.Persister {
	client := s.backendClient
	return domain.PersisterFunc(func(ctx context.Context, conversationID, content, clientToken string) (*models.Message, error) {
		return client.SendMessage(ctx, token, conversationID, content, clientToken)
	})
}

// HistoryLoader reads persisted messages on behalf of token
func (s *Services) HistoryLoader(token string) domain.HistoryLoader {
	client := s.backendClient
	return domain.HistoryLoaderFunc(func(ctx context.Context, conversationID string) ([]models.Message, error) {
		return client.History(ctx, token, conversationID)
	})
}

// NewChatSession opens a conversation session acting as token
func (s *Services) NewChatSession(token string, onUpdate func(chat.Update)) *chat.Session {
	var transport domain.Transport
	if s.transports != nil {
		transport = s.transports(token)
	}
	return chat.NewSession(transport, s.Persister(token),
		chat.WithSendTimeout(config.GetSendTimeout()),
		chat.WithUpdateHandler(onUpdate),
	)
}

// Close releases shared transports and the Redis connection
func (s *Services) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
