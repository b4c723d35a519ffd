package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-gateway/auth"
	"chat-gateway/gateway"
	"chat-gateway/moderation"
	"chat-gateway/repositories"
	"chat-gateway/runtime"
	"chat-gateway/runtime/workers"
	"chat-gateway/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern ensures all 'defer' statements (like database cleanup) are executed
// before the program exits, and keeps the initialization logic testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Services
	bus := runtime.NewEventBus(log, config.EventBufferSize)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	chatRepository := repositories.NewChatRepository(db)
	userRepository := repositories.NewUserRepository(db)

	tokens := auth.NewTokenManager(config.JWTSecret, config.JWTIssuer, config.TokenDuration)
	chatService := services.NewChatService(chatRepository, bus)
	messageService := services.NewMessageService(chatRepository, messageRepository, bus)
	profileService := services.NewProfileService(userRepository, bus)
	authService := services.NewAuthService(userRepository, tokens)

	// 4. Live-connection runtime
	registry := runtime.NewRegistry(log, chatService)
	fanout := runtime.NewFanout(log, registry)

	dict, err := moderation.LoadDictionary()
	if err != nil {
		return fmt.Errorf("loading censored words failed: %w", err)
	}
	log.Info(fmt.Sprintf("%d unique censored words loaded [%s]",
		len(dict.Words), dict.Languages))
	replacement, err := config.CharacterRune()
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(dict.Words, replacement)
	if err != nil {
		return fmt.Errorf("building moderator failed: %w", err)
	}

	dispatcher := gateway.NewDispatcher(log, registry, fanout, messageService, moderator)
	wsServer := gateway.NewServer(log, auth.NewVerifier(tokens), registry, dispatcher)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervised workers
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewLivenessWorker(log, registry, config.PingInterval, config.PongTimeout),
		workers.NewDomainEventWorker(log, bus.Events(), registry, fanout),
		workers.NewHealthWorker(log, registry, config.HealthInterval),
	)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 7. HTTP Server
	mux := http.NewServeMux()
	mux.Handle("GET /ws", wsServer)
	registerAPI(mux, log, authService, chatService, messageService, profileService, tokens)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
