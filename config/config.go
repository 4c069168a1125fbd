package config

import (
	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
)

type CLI struct {
	Check struct{} `cmd:"check" help:"Run the check once and exit with its severity code"`
	Serve struct{} `cmd:"serve" help:"Run the check on an interval and serve status and metrics"`

	ConfigFile string `help:"Configuration file" name:"config" type:"path"`
}

type Config struct {
	Log      LogConfig      `koanf:"log"`
	Broker   BrokerConfig   `koanf:"broker"`
	Check    CheckConfig    `koanf:"check"`
	Registry RegistryConfig `koanf:"registry"`
	History  HistoryConfig  `koanf:"history"`
	Serve    ServeConfig    `koanf:"serve"`
}

type LogConfig struct {
	Pretty bool   `koanf:"pretty"`
	Level  string `koanf:"level"`
}

type BrokerConfig struct {
	Kind string `koanf:"kind"`

	RabbitMQ RabbitMQConfig `koanf:"rabbitmq"`
	SQS      SQSConfig      `koanf:"sqs"`
}

type RabbitMQConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Vhost    string `koanf:"vhost"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// CredentialsFile is an alternative to inline username/password: a
	// KEY=VALUE file providing RABBITMQ_USERNAME and RABBITMQ_PASSWORD.
	CredentialsFile string `koanf:"credentials_file"`

	TLS            bool `koanf:"tls"`
	InsecureTLS    bool `koanf:"insecure_tls"`
	TimeoutSeconds int  `koanf:"timeout_seconds"`
}

type SQSConfig struct {
	Region      string `koanf:"region"`
	Endpoint    string `koanf:"endpoint"`
	AccessKey   string `koanf:"access_key"`
	SecretKey   string `koanf:"secret_key"`
	QueuePrefix string `koanf:"queue_prefix"`
}

type CheckConfig struct {
	MaxCriticalMinutes int      `koanf:"max_critical_minutes"`
	MaxWarningMinutes  int      `koanf:"max_warning_minutes"`
	AcceptedMax        int64    `koanf:"accepted_max"`
	QueueLevel         bool     `koanf:"queue_level"`
	ExcludedQueues     []string `koanf:"excluded_queues"`

	// Aggregate thresholds on the total message count across all queues,
	// independent of the per-queue trend logic. 0 disables.
	WarnTotal int64 `koanf:"warn_total"`
	CritTotal int64 `koanf:"crit_total"`

	// PruneAfterMinutes evicts registry entries for queues not seen this
	// long. 0 keeps vanished queues forever.
	PruneAfterMinutes int `koanf:"prune_after_minutes"`
}

type RegistryConfig struct {
	Kind string `koanf:"kind"`
	Path string `koanf:"path"`
}

type HistoryConfig struct {
	// Path of the run-history database. Empty disables history.
	Path string `koanf:"path"`
	Keep int    `koanf:"keep"`
}

type ServeConfig struct {
	IntervalSeconds int             `koanf:"interval_seconds"`
	Dashboard       DashboardConfig `koanf:"dashboard"`
}

type DashboardConfig struct {
	Enabled bool   `koanf:"enabled"`
	Port    int    `koanf:"port"`
	User    string `koanf:"user"`
	Pass    string `koanf:"pass"`
}

func Load() (string, *CLI, error) {
	cli := &CLI{}
	c := kong.Parse(cli,
		kong.Name("queuewatch"),
		kong.Configuration(kongyaml.Loader, "/etc/queuewatch/flags.yaml", "~/.queuewatch.yaml"),
	)

	return c.Command(), cli, c.Error
}
