package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Zvbcbcv/chat/moderation"
	"github.com/Zvbcbcv/chat/projection"
	"github.com/Zvbcbcv/chat/repositories"
	"github.com/Zvbcbcv/chat/runtime"
	"github.com/Zvbcbcv/chat/runtime/workers"
	"github.com/Zvbcbcv/chat/search"
	"github.com/Zvbcbcv/chat/server"
	"github.com/Zvbcbcv/chat/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of calling os.Exit keeps every defer (database close,
// index flush) on the shutdown path.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	censoredChar, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation
	var moderator *moderation.Moderator
	if config.BannedWordsFilepath != "" {
		words, err := moderation.LoadBannedWords(config.BannedWordsFilepath)
		if err != nil {
			return exitConfig, fmt.Errorf("banned words: %w", err)
		}
		m, err := moderation.NewModerator(words, censoredChar)
		if err != nil {
			return exitConfig, fmt.Errorf("moderator: %w", err)
		}
		moderator = &m
		logger.Info("Moderation enabled", "words", len(words))
	}

	// 4. Repositories & Core
	messages, err := repositories.NewMessageRepository(db, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messages.Close() }()

	var screener repositories.Screener
	if moderator != nil {
		screener = moderator
	}
	directory, err := repositories.NewDirectory(db, screener)
	if err != nil {
		return exitRuntime, fmt.Errorf("directory: %w", err)
	}
	defer func() { _ = directory.Close() }()

	index := search.NewIndex(blugeWriter, logger)
	indexQueue := make(chan search.Entry, config.IndexBufferSize)

	registry := runtime.NewSessionRegistry(logger, config.DeliveryTimeout)
	service := services.NewChatService(logger, registry, messages, directory,
		moderator, index, indexQueue)
	conversations := projection.NewConversationIndex(messages, directory, logger)

	// 5. Context, Signals & Supervision
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(logger, config.RestartInterval).
		Add(workers.NewIndexerWorker(index, indexQueue, logger))
	go sup.Run(ctx)

	// 6. HTTP & Websocket
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	server.NewHTTPHandler(logger, service, directory, conversations, config.SearchLimit).Register(app)

	wsHandler := server.NewWebsocketHandler(logger, service, directory, config.ConnectionBufferSize)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:username", websocket.New(wsHandler.Handle))

	errChan := make(chan error, 1)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	go func() {
		logger.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	if err := app.ShutdownWithTimeout(config.ShutdownTimeout); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}
