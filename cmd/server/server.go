package main

import (
	"context"

	"golang.org/x/sync/errgroup"

	"openchat/internal/config"
	"openchat/internal/domain/chat"
	"openchat/internal/infrastructure/completion"
	"openchat/internal/infrastructure/database"
	"openchat/internal/infrastructure/filedesc"
	"openchat/internal/infrastructure/httpclients"
	"openchat/internal/infrastructure/logger"
	"openchat/internal/infrastructure/memory"
	"openchat/internal/infrastructure/persistence"
	"openchat/internal/infrastructure/transcription"
	"openchat/internal/interfaces/httpserver"
	"openchat/internal/interfaces/httpserver/handlers/chathandler"
	"openchat/internal/interfaces/httpserver/handlers/mediahandler"
	"openchat/internal/interfaces/httpserver/handlers/threadhandler"
)

type Application struct {
	httpServer   *httpserver.HTTPServer
	orchestrator *chat.Orchestrator
	store        *chat.Store
}

func (application *Application) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		application.orchestrator.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		err := application.httpServer.Run()
		if err != nil {
			cancel()
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		panic(err)
	}

	application.orchestrator.Wait()
	application.store.Close()
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("configure logger")
	}

	var backend chat.Backend
	if cfg.Authenticated() {
		db, err := database.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
		backend = persistence.NewRemoteBackend(db, cfg.UserID, log)
	} else {
		local, err := persistence.OpenLocalBackend(cfg.LocalStorePath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("open local store")
		}
		defer local.Close()
		backend = local
	}

	store := chat.NewStore(backend, log)
	if err := store.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("load threads")
	}

	completer := completion.NewClient(httpclients.NewClient("completion"), completion.Config{
		BaseURL:   cfg.CompletionBaseURL,
		APIKey:    cfg.CompletionAPIKey,
		Model:     cfg.CompletionModel,
		MaxTokens: cfg.CompletionTokens,
	}, log)
	describer := filedesc.NewClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.VisionModel, 0, log)
	memoryClient := memory.NewClient(cfg.MemoryBaseURL, cfg.MemoryAPIKey, 0, log)
	transcriber := transcription.NewClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.WhisperModel, 0, log)

	orchestrator := chat.NewOrchestrator(
		store,
		chat.NewPendingQueue(),
		chat.NewContextWindow(cfg.MaxTokens, cfg.ReserveTokens),
		completer,
		describer,
		memoryClient,
		chat.OrchestratorConfig{
			UserID:           cfg.UserID,
			Temperature:      cfg.Temperature,
			RegenTemperature: cfg.RegenTemperature,
		},
		log,
	)

	server := httpserver.NewHTTPServer(
		cfg,
		log,
		chathandler.NewChatHandler(orchestrator, log),
		chathandler.NewMemoryHandler(memoryClient, log),
		threadhandler.NewThreadHandler(store, log),
		mediahandler.NewMediaHandler(transcriber, describer, log),
	)

	application := &Application{
		httpServer:   server,
		orchestrator: orchestrator,
		store:        store,
	}
	application.Start()
}
