package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/config"
	"github.com/garyjia/labinvoice/internal/container"
	httpadapter "github.com/garyjia/labinvoice/internal/interfaces/http"
	"github.com/garyjia/labinvoice/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration (defaults and environment when empty)")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if err := gotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting lab invoice server",
		zap.Int("port", cfg.Server.Port),
		zap.String("output_dir", cfg.Output.BaseDir),
		zap.Bool("inbox", cfg.Inbox.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		log.Fatal("Failed to start container", zap.Error(err))
	}
	defer c.Close()

	srv := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
	}, c.Importer(), c.Exceptions(), c.Uploads(), log)

	if err := srv.Start(ctx); err != nil {
		log.Error("HTTP server failed", zap.Error(err))
		return
	}
	log.Info("Server exited successfully")
}
