package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wrx861/agentai/agent"
	"github.com/wrx861/agentai/config"
	"github.com/wrx861/agentai/llm"
	"github.com/wrx861/agentai/notify"
	"github.com/wrx861/agentai/orchestrator"
	agentserver "github.com/wrx861/agentai/server"
	"github.com/wrx861/agentai/storage"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Components
	store     *storage.Store
	notifier  *notify.Notifier
	templates *agent.Registry
	engine    *orchestrator.Engine
	httpSrv   *http.Server
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Start initializes and starts all components.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	store, err := storage.NewStore(ctx, a.js)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	a.store = store

	if err := a.seedAgents(ctx); err != nil {
		return fmt.Errorf("seed agent configs: %w", err)
	}

	a.notifier = notify.NewNotifier(a.natsConn, a.logger)

	a.templates = agent.NewRegistry(a.cfg.Agents.TemplatesPath, a.logger)
	if err := a.templates.Load(); err != nil {
		return fmt.Errorf("load agent templates: %w", err)
	}
	if err := a.templates.Watch(ctx); err != nil {
		return fmt.Errorf("watch agent templates: %w", err)
	}

	completer := llm.NewClient(
		llm.WithTimeout(a.cfg.Model.Timeout),
		llm.WithLogger(a.logger),
	)

	a.engine = orchestrator.NewEngine(a.store, a.notifier, completer, a.templates, a.modelConfig(), a.logger)

	api := agentserver.NewServer(a.store, a.engine, a.notifier, a.logger)
	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server stopped", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// modelConfig builds the engine's model configuration. The platform API key
// comes from the environment, never from config files.
func (a *App) modelConfig() orchestrator.ModelConfig {
	return orchestrator.ModelConfig{
		Provider:    a.cfg.Model.Provider,
		Model:       a.cfg.Model.Default,
		Endpoint:    a.cfg.Model.Endpoint,
		APIKey:      os.Getenv("AGENTAI_PLATFORM_KEY"),
		Temperature: a.cfg.Model.Temperature,
	}
}

func (a *App) startNATS() error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		// Connect to external NATS
		a.logger.Info("Connecting to NATS", slog.String("url", a.cfg.NATS.URL))
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		// Start embedded NATS server
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		// Wait for server to be ready
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

// seedAgents records the built-in agent roster so the API can list it.
// Existing records are never overwritten.
func (a *App) seedAgents(ctx context.Context) error {
	defaults := make([]storage.AgentConfig, 0)
	for name, template := range agent.DefaultTemplates() {
		defaults = append(defaults, storage.AgentConfig{
			Name:           name,
			PromptTemplate: template,
			ModelProvider:  a.cfg.Model.Provider,
			ModelName:      a.cfg.Model.Default,
			Enabled:        true,
		})
	}
	return a.store.EnsureAgents(ctx, defaults)
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	a.logger.Info("Shutting down")

	if a.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			a.logger.Warn("HTTP shutdown error", slog.String("error", err.Error()))
		}
		cancel()
	}

	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
