package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clintwin/pillfinder/internal/catalog"
	"github.com/clintwin/pillfinder/internal/config"
	"github.com/clintwin/pillfinder/internal/httpapi"
	"github.com/clintwin/pillfinder/internal/identify"
	"github.com/clintwin/pillfinder/internal/observability"
	"github.com/clintwin/pillfinder/internal/phrase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := catalog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("catalog store init failed: %v", err)
	}
	defer store.Close()

	records, err := store.Records(ctx)
	if err != nil {
		log.Fatalf("catalog load failed: %v", err)
	}
	storeMode := "embedded"
	if cfg.DatabaseURL != "" {
		storeMode = "postgres"
	}
	log.Printf("catalog loaded: %d medicines (%s)", len(records), storeMode)

	chain, err := phrase.NewChainFromConfig(phrase.Config{
		Chain:           cfg.PhraseChain,
		ProviderTimeout: cfg.PhraseProviderTimeout,
		Temperature:     cfg.PhraseTemperature,
		HackClubURL:     cfg.HackClubURL,
		HackClubAPIKey:  cfg.HackClubAPIKey,
		HackClubModel:   cfg.HackClubModel,
		OpenAIURL:       cfg.OpenAIURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		AnthropicURL:    cfg.AnthropicURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
	}, metrics)
	if err != nil {
		log.Fatalf("phrasing chain init failed: %v", err)
	}
	log.Printf("phrasing chain: %s", cfg.PhraseChain)

	sessions := identify.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *identify.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	engine, err := identify.NewEngine(records, sessions, chain, metrics, identify.Config{
		MaxQuestions:        cfg.MaxQuestions,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxAlternatives:     cfg.MaxAlternatives,
	})
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	api := httpapi.New(cfg, engine, metrics, len(records), storeMode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, cfg.JanitorInterval)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
