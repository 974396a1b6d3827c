package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shigechika/speedtestz/internal/app"
	"github.com/shigechika/speedtestz/internal/browser"
	"github.com/shigechika/speedtestz/internal/config"
	"github.com/shigechika/speedtestz/internal/logger"
	"github.com/shigechika/speedtestz/internal/pid"
	"github.com/shigechika/speedtestz/internal/registry"
	"github.com/shigechika/speedtestz/internal/sender"
	"github.com/shigechika/speedtestz/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	reg := registry.Builtin(registry.WithOoklaServer(cfg.OoklaServer))

	if cfg.ListSites {
		fmt.Println("Available test sites:")
		for _, id := range reg.IDs() {
			fmt.Printf("  %s\n", id)
		}
		return 0
	}

	logger.Init(cfg.Debug, cfg.Quiet, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.ErrorWithCode(err).Msg("failed to write PID file")
		return 1
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove PID file")
		}
	}()

	recorder, err := telemetry.NewService(telemetry.Config{
		Enabled: cfg.Telemetry.Enable,
		DBPath:  cfg.Telemetry.Database,
	})
	if err != nil {
		logger.ErrorWithCode(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer recorder.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	logger.Info().Msg("speedtestz: START")

	application := app.New(app.Options{
		Config:   cfg,
		Registry: reg,
		NewDriver: func() (browser.Driver, error) {
			return browser.New(browser.Config{Headless: cfg.Headless})
		},
		Sender:    sender.NewZabbix(cfg.Zabbix.Server, cfg.Zabbix.Port),
		Telemetry: recorder,
	})

	report, err := application.Run(ctx)
	if err != nil {
		logger.ErrorWithCode(err).Msg("run aborted")
		return 1
	}

	logger.Info().Msg("speedtestz: FINISH")

	return report.ExitCode()
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
