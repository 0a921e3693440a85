package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/events"
	"github.com/Jonnycatx/agentforge-runner/internal/executor"
	"github.com/Jonnycatx/agentforge-runner/internal/gateway"
	"github.com/Jonnycatx/agentforge-runner/internal/scheduler"
	"github.com/Jonnycatx/agentforge-runner/internal/store"
	"github.com/Jonnycatx/agentforge-runner/internal/tasks"
	"github.com/Jonnycatx/agentforge-runner/internal/triggers"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the runner: gateway, scheduler and trigger engines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := loadConfig(cmd)
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("store opened", "path", cfg.Store.Path)

	exec := executor.New(cfg.Executor.BaseURL, cfg.Executor.Timeout.Duration())
	if err := exec.Health(ctx); err != nil {
		slog.Warn("executor not reachable, tasks will retry", "url", cfg.Executor.BaseURL, "error", err)
	}

	manager := tasks.NewManager(st, exec, bus, tasks.Options{
		MaxRetries: cfg.Execution.MaxRetries,
		RetryDelay: time.Duration(cfg.Execution.RetryDelayMs) * time.Millisecond,
		Timeout:    time.Duration(cfg.Execution.TimeoutMs) * time.Millisecond,
	})
	defer manager.Stop()

	schedEngine := scheduler.NewEngine(st, manager, bus, cfg.Scheduler.TickInterval.Duration())
	schedEngine.Start()
	defer schedEngine.Stop()

	trigEngine := triggers.NewEngine(st, manager, bus)
	trigEngine.Start()
	defer trigEngine.Stop()

	server := gateway.NewServer(st, manager, bus, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Activity.DefaultLimit)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
