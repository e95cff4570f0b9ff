package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/relaychat/internal/roomstore"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/telemetry"
)

const appName = "relaychat"

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		slog.Error("relaychat exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  appName,
		Usage: "real-time chat relay over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address", Sources: cli.EnvVars("RELAY_ADDR")},
			&cli.StringFlag{Name: "path", Usage: "WebSocket endpoint path", Sources: cli.EnvVars("RELAY_WS_PATH")},
			&cli.IntFlag{Name: "workers", Usage: "message worker goroutines (default 2x GOMAXPROCS)", Sources: cli.EnvVars("RELAY_WORKERS")},
			&cli.IntFlag{Name: "acceptors", Usage: "accept loops sharing the listener", Sources: cli.EnvVars("RELAY_ACCEPTORS")},
			&cli.StringSliceFlag{Name: "origins", Usage: "allowed WebSocket origins, * for any", Sources: cli.EnvVars("RELAY_ALLOWED_ORIGINS")},
			&cli.StringFlag{Name: "jwt-secret", Usage: "HS256 secret; enables bearer auth on upgrade", Sources: cli.EnvVars("RELAY_JWT_SECRET")},
			&cli.StringFlag{Name: "room-db", Usage: "SQLite room directory path; enables join gating", Sources: cli.EnvVars("RELAY_ROOM_DB")},
			&cli.StringSliceFlag{Name: "seed-room", Usage: "create room id:name in the room directory if missing"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := setupLogger(cmd.String("log-level"))

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	traceCfg, err := telemetry.ConfigFromEnv()
	if err != nil {
		return err
	}
	shutdownTracing, err := telemetry.Setup(ctx, traceCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.RoomDBPath != "" {
		store, err := roomstore.Open(cfg.RoomDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := seedRooms(ctx, store, cmd.StringSlice("seed-room")); err != nil {
			return err
		}
		opts = append(opts, server.WithRoomDirectory(store))
		logger.Info("room directory enabled", slog.String("path", cfg.RoomDBPath))
	}

	srv := server.New(cfg, opts...)
	if err := srv.Init(); err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cli.Command, cfg *server.Config) {
	if cmd.IsSet("addr") {
		cfg.Addr = cmd.String("addr")
	}
	if cmd.IsSet("path") {
		cfg.Path = cmd.String("path")
	}
	if cmd.IsSet("workers") {
		cfg.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("acceptors") {
		cfg.Acceptors = int(cmd.Int("acceptors"))
	}
	if cmd.IsSet("origins") {
		cfg.AllowedOrigins = cmd.StringSlice("origins")
	}
	if cmd.IsSet("jwt-secret") {
		cfg.JWTSecret = cmd.String("jwt-secret")
	}
	if cmd.IsSet("room-db") {
		cfg.RoomDBPath = cmd.String("room-db")
	}
	cfg.Sanitize()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}
