package main

import (
	"context"
	"log/slog"
	"os"

	acapp "github.com/park285/anonchat-go/internal/anonchat/app"
	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/common/bootstrap"
	"github.com/park285/anonchat-go/internal/common/health"
)

// Version: 빌드 시 ldflags로 주입됨 (예: -ldflags="-X main.Version=1.0.0")
var Version = "dev"

func main() {
	health.Init(Version)

	logger := bootstrap.NewLogger()
	slog.SetDefault(logger)

	finalLogger, err := bootstrap.RunServiceEntrypoint(
		context.Background(),
		logger,
		"anonchat.log",
		acconfig.LoadFromEnv,
		func(cfg *acconfig.Config) acconfig.LogConfig { return cfg.Log },
		acapp.Initialize,
	)
	if err != nil {
		logger = finalLogger
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}
