package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	configPath := ""
	if _, err := os.Stat(defaultConfigPath); err == nil {
		loadedConfig, err := shared.LoadConfig(defaultConfigPath)
		if err != nil {
			logger.Fatalf("failed to load %s: %v", defaultConfigPath, err)
		}
		config, configPath = loadedConfig, defaultConfigPath
	}
	if err := config.ApplyEnv(); err != nil {
		logger.Warn("ignoring environment overrides", "error", err)
	}
	if err := config.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	creds := services.NewCredentials(config.Auth.TokenPath)
	if err := creds.Load(); err != nil {
		logger.Warn("failed to read stored token", "path", creds.Path(), "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:      config,
		ConfigPath:  configPath,
		Credentials: creds,
		Logger:      logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:    "bpmx",
		Usage:   "Upload tracks, detect their tempo and render them to a running pace",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		runner.Close()
		logger.Fatalf("application error: %v", err)
	}
}
