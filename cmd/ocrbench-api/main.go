package main

import (
	"flag"
	"os"

	"go-ocr-throughput/internal/api"
	"go-ocr-throughput/internal/api/handler"
	"go-ocr-throughput/internal/config"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/store"
	"go-ocr-throughput/pkg/router"
	"go-ocr-throughput/pkg/utils"
)

func main() {
	configFile := flag.String("config", "", "config file path (default ./ocrbench.yaml)")
	flag.Parse()

	log := logging.Entry()

	cfg, err := config.LoadConfig(config.New(), *configFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	cleanup, err := logging.Init(*cfg.Logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up logging")
	}
	defer cleanup()

	// Init DB
	if cfg.Store.Path == "" {
		log.Fatal("Run history is disabled (store.path is empty), nothing to serve")
	}
	if err := store.InitDB(cfg.Store.Path); err != nil {
		log.WithError(err).Fatal("Failed to open run history")
	}
	defer store.Close()

	handler.SetOutputManager(utils.NewOutputManager(cfg.Output.Dir))

	// Create router
	r := router.New(logging.Entry())

	// Register API routes
	api.RegisterRoutes(r)

	// Start server
	if err := r.Start(cfg.API.Addr); err != nil {
		log.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}
