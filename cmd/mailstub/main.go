// @title Mailbox Stub API
// @version 1.0
// @description In-memory mailbox answering the Gmail message list/get subset

// @host localhost:8025
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token, when the stub runs with MAILSTUB_TOKEN

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

	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/internal/config"
	"github.com/gti/penpot-e2e/internal/logging"
	"github.com/gti/penpot-e2e/internal/mailstub"
)

func main() {
	cfg, err := config.LoadStub()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	e := mailstub.NewServer(mailstub.NewStore(), cfg.Token, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("starting mailbox stub", zap.String("addr", addr), zap.Bool("auth", cfg.Token != ""))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down mailbox stub")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown error", zap.Error(err))
	}
}
