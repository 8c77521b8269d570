package main

import (
	"context"
	"testing"
	"time"

	"github.com/wrx861/agentai/config"
)

func TestAppStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS app test in short mode")
	}

	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"

	app, err := NewApp(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}

	// Verify components are initialized
	if app.natsConn == nil {
		t.Error("NATS connection not initialized")
	}
	if app.js == nil {
		t.Error("JetStream not initialized")
	}
	if app.store == nil {
		t.Error("Store not initialized")
	}
	if app.engine == nil {
		t.Error("Engine not initialized")
	}
	if app.embeddedServer == nil {
		t.Error("Embedded NATS server not started")
	}

	// The built-in agent roster is seeded on startup
	agents, err := app.store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("failed to list agents: %v", err)
	}
	if len(agents) == 0 {
		t.Error("expected seeded agent configs")
	}

	app.Shutdown(5 * time.Second)

	if app.natsConn.IsConnected() {
		t.Error("NATS connection still open after shutdown")
	}
}

func TestModelConfigReadsPlatformKey(t *testing.T) {
	t.Setenv("AGENTAI_PLATFORM_KEY", "pk-test")

	app, err := NewApp(config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	mc := app.modelConfig()
	if mc.APIKey != "pk-test" {
		t.Errorf("APIKey = %q, want %q", mc.APIKey, "pk-test")
	}
	if mc.Provider != app.cfg.Model.Provider {
		t.Errorf("Provider = %q, want %q", mc.Provider, app.cfg.Model.Provider)
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if newLogger(level) == nil {
			t.Errorf("nil logger for level %q", level)
		}
	}
}

func TestRootCmdHasVersion(t *testing.T) {
	cmd := rootCmd()
	found := false
	for _, sub := range cmd.Commands() {
		if sub.Use == "version" {
			found = true
		}
	}
	if !found {
		t.Error("version subcommand not registered")
	}
}
