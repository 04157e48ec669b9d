package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/api"
	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/config"
	"campaign-action-engine/internal/counter"
	"campaign-action-engine/internal/engine"
	"campaign-action-engine/internal/listener"
	"campaign-action-engine/internal/service"
	"campaign-action-engine/internal/storage"
)

// Server wires the catalog snapshot, the counter store and the HTTP API.
type Server struct {
	Catalogs *service.Catalogs
	Sessions *storage.Sessions
	handler  http.Handler
}

func New(src service.DocumentSource, store counter.Store, cfg config.Config) *Server {
	catalogs := service.NewCatalogs(src)
	eval := engine.NewEvaluator(engine.WithHighValueCutoff(cfg.Engine.HighValueUGCCutoff))
	ingest := service.NewIngestor(eval, catalogs, store, cfg.Engine.MaxAttempts)
	sessions := storage.NewSessions(cfg.SessionTTL())
	journeys := service.NewJourneys(catalogs, sessions)
	return &Server{
		Catalogs: catalogs,
		Sessions: sessions,
		handler:  api.Router(api.NewHandler(ingest, journeys)),
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

func Run(cfg config.Config) {
	config.SetupLogging(cfg.Server.LogLevel)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var pg *storage.Store
	if cfg.NeedsPostgres() {
		var err error
		pg, err = storage.New(rootCtx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init storage")
		}
		defer pg.Close()
		if err := pg.Migrate(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("migrate schema")
		}
	}

	var src service.DocumentSource = pg
	if cfg.Engine.CatalogFile != "" {
		src = catalog.FileSource{Path: cfg.Engine.CatalogFile}
	}

	store, closeStore, err := counterStore(rootCtx, cfg, pg)
	if err != nil {
		log.Fatal().Err(err).Msg("init counter store")
	}
	defer closeStore()

	// Engine
	s := New(src, store, cfg)
	if err := s.Catalogs.Reload(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("initial snapshot build")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Catalog refresh
	if cfg.Engine.CatalogFile != "" {
		go func() {
			if err := listener.WatchFile(rootCtx, cfg.Engine.CatalogFile, s.Catalogs.Reload); err != nil {
				log.Error().Err(err).Msg("catalog file watch stopped")
			}
		}()
	} else {
		go listener.ListenAndRefresh(rootCtx, pg, s.Catalogs.Reload, cfg.Listener.Channel, cfg.Backoff())
	}

	go s.Sessions.RunSweeper(rootCtx, time.Minute)

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("counters", cfg.Counters.Backend).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func counterStore(ctx context.Context, cfg config.Config, pg *storage.Store) (counter.Store, func(), error) {
	switch cfg.Counters.Backend {
	case "memory":
		log.Warn().Msg("counters kept in memory; they are lost on restart")
		return counter.NewMemoryStore(), func() {}, nil
	case "postgres":
		return storage.NewPostgresCounters(pg.PgxPool(), cfg.LockTimeout()), func() {}, nil
	case "redis":
		client, err := storage.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisCounters(client), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown counters backend %q", cfg.Counters.Backend)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
