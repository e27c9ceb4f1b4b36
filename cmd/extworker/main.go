package main

import (
	"fmt"
	"os"

	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/cloudcarver/extworker/wire"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// set with -ldflags "-X main.Version=..."
var Version = "dev"

var log = logger.NewLogAgent("main")

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the yaml config file, environment variables prefixed with " + config.EnvPrefix + " override it",
	Value:   string(config.DefaultPath()),
	EnvVars: []string{config.EnvPrefix + "CONFIG"},
}

func main() {
	app := &cli.App{
		Name:  "extworker",
		Usage: "External task worker relaying BPMN service tasks to HTTP endpoints",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Poll the engine and execute tasks until interrupted",
				Flags:  []cli.Flag{configFlag},
				Action: runWorker,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Flags:  []cli.Flag{configFlag},
				Action: printConfig,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(*cli.Context) error {
					fmt.Println(Version)
					return nil
				},
			},
		},
		DefaultCommand: "run",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.NewConfig(config.Path(c.String(configFlag.Name)))
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, errors.Wrap(err, "failed to init logger")
	}
	return cfg, nil
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	log.Info("starting worker",
		zap.String("version", Version),
		zap.String("worker_id", cfg.Worker.ID),
		zap.String("engine", cfg.Engine.BaseURL),
		zap.String("downstream", cfg.Downstream.BaseURL),
	)

	app, err := wire.InitializeApplication(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize application")
	}
	if err := app.Start(); err != nil {
		log.Error("exit with error", zap.Error(err))
		return err
	}
	log.Info("bye.")
	return nil
}

func printConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	_, err = os.Stdout.Write(out)
	return err
}
