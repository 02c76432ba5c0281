package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperchat/paperchat/db"
	"github.com/paperchat/paperchat/internal/api"
	"github.com/paperchat/paperchat/internal/chat"
	"github.com/paperchat/paperchat/internal/config"
	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/observability"
	"github.com/paperchat/paperchat/internal/search"
)

// parseRateBurst reads PAPERCHAT_RATE_BURST from the environment.
// Returns 0 (use default) if unset or invalid.
func parseRateBurst() int {
	v := os.Getenv("PAPERCHAT_RATE_BURST")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // turns wait on the language model
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe initializes and starts the HTTP API server.
func runServe(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	opts, err := parseServeArgs(args, cfg.ServerAddr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting HTTP API server", "version", Version, "addr", opts.addr)

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("tracing shutdown error", "error", err)
			}
		}()
	}

	var (
		store conversation.Store
		pool  *pgxpool.Pool
	)
	if opts.memory {
		logger.Warn("using in-memory store, conversations are lost on restart")
		store = conversation.NewMemoryStore()
	} else {
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		pool, err = pgxpool.New(ctx, cfg.PostgresURL())
		if err != nil {
			return fmt.Errorf("creating connection pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("pinging database: %w", err)
		}
		store = conversation.NewPostgresStore(pool, logger)
	}

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.ModelName,
		MaxTokens:         cfg.MaxTokens,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating language model client: %w", err)
	}

	gateway, err := search.NewGateway(search.Config{
		BaseURL: cfg.SearchBaseURL,
		Timeout: cfg.SearchTimeout(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating search gateway: %w", err)
	}

	synth, err := chat.NewSynthesizer(chat.SynthesizerConfig{
		Client:        client,
		HistoryWindow: cfg.HistoryWindow,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating synthesizer: %w", err)
	}
	orch, err := chat.NewOrchestrator(chat.OrchestratorConfig{
		Classifier:  chat.NewClassifier(client, logger),
		Assembler:   chat.NewAssembler(gateway, gateway, logger),
		Synthesizer: synth,
		Store:       store,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	docs, err := chat.NewDocChat(chat.DocChatConfig{
		Client:        client,
		Store:         store,
		HistoryWindow: cfg.DocHistoryWindow,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating document chat: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Store:        store,
		Orchestrator: orch,
		DocChat:      docs,
		Resolver:     gateway,
		Pool:         pool,
		RateBurst:    parseRateBurst(),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", opts.addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
