package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/arencloud/iris/internal/api"
	"github.com/arencloud/iris/internal/config"
	"github.com/arencloud/iris/internal/db"
	"github.com/arencloud/iris/internal/logging"
	"github.com/arencloud/iris/internal/middleware"
	"github.com/arencloud/iris/internal/secret"
)

// devAppKey keeps local development working without an APP_KEY. Anything
// sealed with it is throwaway; production refuses to start without a real key.
const devAppKey = "iris-dev-insecure-app-key"

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)

	appKey := cfg.AppKey
	if appKey == "" {
		if cfg.Env != "dev" {
			logger.Fatal("APP_KEY is required outside dev; stored credentials cannot be sealed without it")
		}
		logger.Info("APP_KEY not set, using development key; stored credentials are not protected")
		appKey = devAppKey
	}
	if err := secret.Init(appKey); err != nil {
		logger.Fatal("failed to init credential sealing", "error", err)
	}

	if err := db.Init(cfg, logger); err != nil {
		logger.Fatal("failed to init db", "error", err)
	}

	r := api.Router(cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           middleware.Recoverer(r, logger),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0, // allow long-running uploads/downloads; rely on LB timeouts
		WriteTimeout:      0,
		MaxHeaderBytes:    1 << 20, // 1MB headers
	}
	logger.Info("server starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}
