package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ccsa/internal/commands"
	"ccsa/internal/config"

	"go.uber.org/zap"
)

func main() {
	// env, .env и флаги
	cfg := config.NewConfig()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	if !cfg.Debug {
		logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}
	commands.Logger = logger.Sugar()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// dispatcher
	exitCode := commands.Dispatch(ctx, cfg, flag.Args())
	if exitCode == 0 {
		return
	}
	cancel()
	os.Exit(exitCode)
}
