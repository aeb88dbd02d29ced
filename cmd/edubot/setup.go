package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/edubot/internal/config"
	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/providers/llm"
	"github.com/sandevgo/edubot/internal/providers/web"
	"github.com/sandevgo/edubot/internal/service/engine"
	"github.com/sandevgo/edubot/internal/service/memory"
	"github.com/sandevgo/edubot/internal/storage/sqlite"
	"github.com/sandevgo/edubot/internal/transport/matrix"
	"github.com/sandevgo/edubot/internal/transport/telegram"
	"github.com/sandevgo/edubot/pkg/log"
	"github.com/sandevgo/edubot/pkg/srv"
)

// app is the wiring shared by every command.
type app struct {
	cfg    *config.AppConfig
	db     *sql.DB
	engine *engine.Engine
}

func newApp(ctx context.Context) (*app, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, err
	}

	// 1. Configuration
	appCfg, err := config.NewAppConfig()
	if err != nil {
		return nil, err
	}
	providerCfg, err := config.NewProviderConfig()
	if err != nil {
		return nil, err
	}

	// 2. Storage
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	estimator, err := newEstimator(appCfg.TokenEstimator)
	if err != nil {
		db.Close()
		return nil, err
	}

	// 3. AI Provider
	provider := llm.NewProvider(ctx, providerCfg)

	// 4. Engine
	eng := engine.New(
		engine.Config{
			PromptTokens:     appCfg.PromptTokens,
			CompletionTokens: appCfg.CompletionTokens,
			HistoryMessages:  appCfg.HistoryMessages,
			Estimator:        estimator,
		},
		sqlite.NewStore(db),
		provider,
		memory.NewSysPrompt(appCfg, providerCfg.GetModel()),
		engine.WithImageDescriber(provider),
		engine.WithPageFetcher(web.NewFetcher()),
	)

	return &app{cfg: appCfg, db: db, engine: eng}, nil
}

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	a, err := newApp(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize edubot")
	}
	services = append(services, srv.NewCleanup(a.db.Close))

	transports, err := initTransports(ctx, a)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	if len(transports) == 0 {
		logger.Warn().Msg("no transport enabled; set ENABLE_TELEGRAM or ENABLE_MATRIX")
	}
	services = append(services, transports...)

	return services
}

func newEstimator(name string) (core.Estimator, error) {
	if name == config.EstimatorTiktoken {
		tk, err := memory.NewTiktoken()
		if err != nil {
			return nil, err
		}
		return tk, nil
	}
	return memory.Heuristic{}, nil
}

func initTransports(ctx context.Context, a *app) ([]srv.Service, error) {
	var services []srv.Service

	// Telegram Bot
	if a.cfg.IsTelegramSelected() {
		tgCfg, err := config.NewTelegramConfig()
		if err != nil {
			return nil, err
		}
		bot, err := telegram.NewBot(ctx, tgCfg, a.engine, tgCfg.Persona)
		if err != nil {
			return nil, err
		}
		services = append(services, bot)
	}

	// Matrix Client
	if a.cfg.IsMatrixSelected() {
		mxCfg, err := config.NewMatrixConfig()
		if err != nil {
			return nil, err
		}
		client, err := matrix.NewClient(mxCfg, a.engine, sqlite.NewSyncStateRepo(a.db), mxCfg.Persona)
		if err != nil {
			return nil, err
		}
		services = append(services, client)
	}

	return services, nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
