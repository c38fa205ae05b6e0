package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elauriault/ubgpd-sub000/internal/config"
	kbgphttp "github.com/elauriault/ubgpd-sub000/internal/http"
	"github.com/elauriault/ubgpd-sub000/internal/metrics"
	"github.com/elauriault/ubgpd-sub000/internal/speaker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "version":
		fmt.Println("kbgpd " + version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: kbgpd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the BGP speaker")
	fmt.Println("  version   Print the version and exit")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>    Path to configuration YAML file")
	fmt.Println("  --log-level <lvl>  Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	configPath, logLevelOverride := parseFlags(os.Args[2:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting kbgpd",
		zap.Uint16("asn", cfg.ASN),
		zap.String("rid", cfg.RouterID),
		zap.String("http_listen", cfg.HTTPListen),
		zap.Int("neighbors", len(cfg.Neighbors)),
	)

	sp, err := speaker.New(cfg, logger.Named("speaker"))
	if err != nil {
		logger.Fatal("failed to build speaker", zap.Error(err))
	}

	httpServer := kbgphttp.NewServer(cfg.HTTPListen, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start http server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	speakerErr := make(chan error, 1)
	go func() { speakerErr <- sp.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-speakerErr:
		if err != nil {
			logger.Error("speaker stopped unexpectedly", zap.Error(err))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	select {
	case err := <-speakerErr:
		if err != nil {
			logger.Error("speaker stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, speaker may not have stopped cleanly")
	}

	logger.Info("kbgpd stopped")
}
