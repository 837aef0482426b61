package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/hivegate-io/hivegate/db"
	"github.com/hivegate-io/hivegate/internal/config"
	"github.com/hivegate-io/hivegate/internal/credstore"
	"github.com/hivegate-io/hivegate/internal/db"
	"github.com/hivegate-io/hivegate/internal/gateway"
	"github.com/hivegate-io/hivegate/internal/handlers"
	"github.com/hivegate-io/hivegate/internal/logger"
	"github.com/hivegate-io/hivegate/internal/platform"
	"github.com/hivegate-io/hivegate/internal/platform/discord"
	"github.com/hivegate-io/hivegate/internal/platform/slack"
	"github.com/hivegate-io/hivegate/internal/platform/telegram"
	"github.com/hivegate-io/hivegate/internal/queue"
	"github.com/hivegate-io/hivegate/internal/secrets"
	"github.com/hivegate-io/hivegate/internal/server"
	"github.com/hivegate-io/hivegate/internal/version"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideSecretsBox(cfg config.Config) (*secrets.Box, error) {
	return secrets.NewBox(cfg.Secrets.MasterKey)
}

func provideConnectQueue(log *slog.Logger, pool *pgxpool.Pool) queue.ConnectQueue {
	return queue.NewPgQueue(log, pool)
}

// provideEventHandler is the default inbound sink: normalized events are
// logged. Downstream consumers (a message router, a processing pipeline)
// would replace this.
func provideEventHandler(log *slog.Logger) platform.EventHandler {
	l := log.With(slog.String("component", "events"))
	return func(ctx context.Context, cfg platform.BotConfig, evt platform.Event) error {
		l.Info("inbound event",
			slog.String("platform", evt.Platform.String()),
			slog.String("application_id", evt.ApplicationID),
			slog.String("type", evt.Type),
			slog.String("sender", evt.Sender),
			slog.String("target", evt.Target),
			slog.String("message_id", evt.MessageID))
		return nil
	}
}

func provideRegistry(log *slog.Logger, store *credstore.Service, events platform.EventHandler) *platform.Registry {
	registry := platform.NewRegistry()
	registry.MustRegister(discord.NewAdapter(log, store, events))
	registry.MustRegister(slack.NewAdapter(log, store, events))
	registry.MustRegister(telegram.NewAdapter(log, store, events))
	return registry
}

func provideOrchestrator(log *slog.Logger, registry *platform.Registry, store *credstore.Service, q queue.ConnectQueue, events platform.EventHandler, cfg config.Config) *gateway.Orchestrator {
	return gateway.NewOrchestrator(log, registry, store, q, events, cfg.Gateway.PollIntervalDuration())
}

func provideLifecycle(log *slog.Logger, orc *gateway.Orchestrator, state *gateway.ProcessState, cfg config.Config) *gateway.Lifecycle {
	return gateway.NewLifecycle(log, orc, state, cfg.Gateway.CronPattern, cfg.Gateway.CycleBudgetDuration())
}

func provideGatewayHandler(log *slog.Logger, orc *gateway.Orchestrator, lifecycle *gateway.Lifecycle, cfg config.Config) *handlers.GatewayHandler {
	return handlers.NewGatewayHandler(log, orc, lifecycle, cfg.Gateway.CycleBudgetDuration())
}

func provideMessagesHandler(log *slog.Logger, registry *platform.Registry, store *credstore.Service) *handlers.MessagesHandler {
	return handlers.NewMessagesHandler(log, registry, store)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.GatewaySecret, params.ServerHandlers...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func runMigrations(logger *slog.Logger, cfg config.Config) error {
	migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	return db.RunMigrate(logger, cfg.Postgres, migrationsFS, "up", nil)
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	lifecycle *gateway.Lifecycle,
) {
	fmt.Printf("Starting Hivegate %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := runMigrations(logger, cfg); err != nil {
				return err
			}

			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown() // shutdown the application if the server fails to start
				}
			}()

			// Self-hosted deployments have no external cron; bring up the
			// background cycle immediately.
			return lifecycle.EnsureRunning(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := lifecycle.Stop(ctx); err != nil {
				logger.Warn("gateway stop failed", slog.Any("error", err))
			}
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,

			provideDBConn,
			provideSecretsBox,
			provideConnectQueue,
			provideEventHandler,

			credstore.NewService,
			provideRegistry,
			provideOrchestrator,
			gateway.NewProcessState,
			provideLifecycle,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideGatewayHandler),
			provideServerHandler(handlers.NewWebhookHandler),
			provideServerHandler(handlers.NewBotsHandler),
			provideServerHandler(provideMessagesHandler),

			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}
