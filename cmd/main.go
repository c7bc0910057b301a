package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/asia-ai/asia-chat/internal/api/v1/handlers"
	"github.com/asia-ai/asia-chat/internal/api/v1/middleware"
	"github.com/asia-ai/asia-chat/internal/config"
	"github.com/asia-ai/asia-chat/internal/infrastructure/pubsub"
	"github.com/asia-ai/asia-chat/internal/infrastructure/redis"
	"github.com/asia-ai/asia-chat/internal/services"
	"github.com/asia-ai/asia-chat/internal/services/chat"
	"github.com/asia-ai/asia-chat/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "asia-chat",
		Short:         "ASIA.ai chat front-end server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}
	root.AddCommand(newServeCommand(), newWatchCommand(), newEmitCommand())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and live conversation views",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().String("addr", ":"+config.GetPort(), "Listen address")
	return cmd
}

func setupRouter(svc *services.Services) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery, middleware.Logging)
	handlers.RegisterV1Routes(r, svc)
	return r
}

func serve(ctx context.Context, addr string) error {
	svc, err := services.InitializeServices()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close services")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           setupRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
			return err
		}
		log.Info().Msg("Server shutdown complete")
		return nil
	})
	eg.Go(func() error {
		log.Info().Str("addr", addr).Bool("production", config.IsProduction()).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <conversation-id>",
		Short: "Follow a conversation in the terminal, sending each stdin line as a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			return watch(cmd.Context(), args[0], token, email, password, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("token", os.Getenv("ASIA_TOKEN"), "Backend bearer token")
	cmd.Flags().String("email", "", "Sign in with this email when no token is given")
	cmd.Flags().String("password", "", "Password for --email")
	return cmd
}

func watch(ctx context.Context, conversationID, token, email, password string, in io.Reader, out io.Writer) error {
	svc, err := services.InitializeServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if token == "" {
		if email == "" {
			return errors.New("either --token or --email is required")
		}
		result, err := svc.GetBackendClient().Login(ctx, email, password)
		if err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		token = result.Token
	}

	history, err := svc.HistoryLoader(token).History(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}

	enc := json.NewEncoder(out)
	session := svc.NewChatSession(token, func(u chat.Update) {
		_ = enc.Encode(u)
	})
	defer session.Close()

	if err := session.Initialize(ctx, conversationID, chat.WithWelcome(history, time.Now())); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := session.Send(ctx, line); err != nil {
				log.Warn().Err(err).Msg("Message not sent")
			}
		}
	}
}

func newEmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit <conversation-id> [payload]",
		Short: "Publish a raw conversation event to Redis Streams",
		Long: "Publish a raw conversation event to Redis Streams. The payload uses the " +
			"ActionCable broadcast format and is read from stdin when omitted.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			} else {
				var err error
				if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
			}
			return emit(args[0], payload)
		},
	}
	return cmd
}

func emit(conversationID string, payload []byte) error {
	payload = []byte(strings.TrimSpace(string(payload)))
	if !json.Valid(payload) {
		return errors.New("payload is not valid JSON")
	}

	redisService := redis.NewService()
	if redisService == nil {
		return errors.New("emit requires a reachable REDIS_URL")
	}
	defer redisService.Close()

	pub, err := pubsub.NewRedisPublisher(redisService.Client())
	if err != nil {
		return err
	}
	publisher := pubsub.NewPublisher(pub)
	defer publisher.Close()

	if err := publisher.Publish(conversationID, payload); err != nil {
		return err
	}
	log.Info().Str("topic", pubsub.TopicFor(conversationID)).Msg("Event published")
	return nil
}
