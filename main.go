package main

import (
	"context"
	"os"
	"strings"

	_ "embed"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/queuewatch/queuewatch/check"
	"github.com/queuewatch/queuewatch/cmd/queuewatch"
	"github.com/queuewatch/queuewatch/cmd/queuewatch/server"
	"github.com/queuewatch/queuewatch/collector/rabbitmq"
	"github.com/queuewatch/queuewatch/collector/sqscollector"
	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/dashboard"
	"github.com/queuewatch/queuewatch/history"
	"github.com/queuewatch/queuewatch/models"
	"github.com/queuewatch/queuewatch/registry/filestore"
	"github.com/queuewatch/queuewatch/registry/sqlitestore"
)

//go:embed config.yaml
var configData []byte

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func newCollector(cfg config.BrokerConfig) (models.Collector, error) {
	switch cfg.Kind {
	case "sqs":
		return sqscollector.New(context.Background(), cfg.SQS)
	default:
		if err := cfg.RabbitMQ.LoadCredentialsFile(); err != nil {
			return nil, err
		}
		return rabbitmq.New(cfg.RabbitMQ), nil
	}
}

func newStore(cfg config.RegistryConfig) (models.RegistryStore, error) {
	switch cfg.Kind {
	case "sqlite":
		return sqlitestore.New(cfg.Path)
	default:
		return filestore.New(cfg.Path), nil
	}
}

func Run(command string, cfg *config.Config, collector models.Collector, store models.RegistryStore) int {
	var err error

	if collector == nil {
		collector, err = newCollector(cfg.Broker)
		if err != nil {
			log.Error().Err(err).Msg("Unable to build collector")
			return models.SeverityUnknown.ExitCode()
		}
	}

	if store == nil {
		store, err = newStore(cfg.Registry)
		if err != nil {
			log.Error().Err(err).Msg("Unable to open registry store")
			return models.SeverityUnknown.ExitCode()
		}
	}

	checker, err := check.New(collector, store, cfg.Check)
	if err != nil {
		log.Error().Err(err).Msg("Unable to build checker")
		return models.SeverityUnknown.ExitCode()
	}

	var recorder *history.Recorder
	if cfg.History.Path != "" {
		recorder, err = history.New(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			log.Error().Err(err).Msg("Unable to open history database")
		} else {
			checker.WithRecorder(recorder)
		}
	}

	switch command {
	case "serve":
		dash := dashboard.NewDashboard(store, recorder, cfg.Serve.Dashboard)
		server.Run(checker, dash, cfg.Serve)
		return 0
	default:
		return queuewatch.RunCheck(checker)
	}
}

func main() {
	command, cli, err := config.Load()
	if err != nil {
		panic(err)
	}

	k := koanf.New(".")
	cfg := &config.Config{}
	parser := yaml.Parser()
	var provider koanf.Provider

	if cli.ConfigFile != "" {
		provider = file.Provider(cli.ConfigFile)
	} else {
		provider = rawbytes.Provider(configData)
	}

	err = k.Load(provider, parser)
	if err != nil {
		panic(err)
	}

	// QUEUEWATCH_BROKER__RABBITMQ__HOST=... style overrides; double
	// underscore separates levels so key names can keep single underscores.
	err = k.Load(env.Provider("QUEUEWATCH_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "QUEUEWATCH_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		panic(err)
	}

	err = k.Unmarshal("", cfg)
	if err != nil {
		panic(err)
	}

	setupLogging(cfg.Log)

	os.Exit(Run(command, cfg, nil, nil))
}
