package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhishekaryan23/vaultvoice/internal/backend"
	"github.com/abhishekaryan23/vaultvoice/internal/config"
	"github.com/abhishekaryan23/vaultvoice/internal/dialogue"
	"github.com/abhishekaryan23/vaultvoice/internal/httpapi"
	"github.com/abhishekaryan23/vaultvoice/internal/observability"
	"github.com/abhishekaryan23/vaultvoice/internal/transcript"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer store.Close()

	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendCommandTimeout)
	log.Printf("backend: %s", cfg.BackendBaseURL)

	dialogues := dialogue.NewManager(client, store, metrics, cfg.DialogueInactivityTimeout, cfg.CaptureMaxSeconds)
	dialogues.SetExpireHook(func(_ *dialogue.Dialogue) {
		metrics.ActiveDialogues.Set(float64(dialogues.ActiveCount()))
	})

	api := httpapi.New(cfg, dialogues, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	dialogues.StartJanitor(runCtx, 5*time.Second)

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
