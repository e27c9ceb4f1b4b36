package config

import (
	"net/url"
	"os"
	"time"

	"github.com/cloudcarver/edc/conf"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

const (
	EnvPrefix         = "EW_"
	DefaultConfigPath = "config.yaml"

	DefaultEngineBaseURL     = "http://operaton:8080/engine-rest"
	DefaultDownstreamBaseURL = "http://fastapi-api:8000/api/v1"
	DefaultWorkerID          = "generic-http-worker"
	DefaultMaxTasks          = 5
	DefaultLockDuration      = 30 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultRetryTimeout      = 60 * time.Second
	DefaultRelayTimeout      = 10 * time.Second
	DefaultEngineTimeout     = 30 * time.Second
	DefaultMetricsPort       = 9020
)

// Environment variables understood by the original deployment.
const (
	LegacyEngineURLEnv     = "CAMUNDA_REST_URL"
	LegacyDownstreamURLEnv = "FASTAPI_URL"
)

type FailurePolicy string

const (
	// ReportTerminal reports the failure with the configured retries (0 by
	// default), which raises an incident in the engine.
	ReportTerminal FailurePolicy = "report-terminal"

	// LeaveForLease only logs; the lock expires and the task is re-offered.
	LeaveForLease FailurePolicy = "leave-for-lease"
)

type Topic struct {
	// (Required) The topic name to subscribe to
	Name string `yaml:"name"`

	// (Optional) How long fetched tasks stay locked to this worker, default is 30s
	LockDuration time.Duration `yaml:"lockduration,omitempty"`

	// (Optional) report-terminal or leave-for-lease. The default depends on the topic:
	// the generic http relay reports, the fixed relays leave the task for lease expiry.
	OnFailure FailurePolicy `yaml:"onfailure,omitempty"`

	// (Optional) Retries sent with a failure report, default is 0 (terminal)
	Retries int `yaml:"retries,omitempty"`

	// (Optional) Delay before the engine re-offers a reported failure, default is 60s
	RetryTimeout time.Duration `yaml:"retrytimeout,omitempty"`
}

type Worker struct {
	// (Optional) The worker id used as lock owner, default is "generic-http-worker"
	ID string `yaml:"id,omitempty"`

	// (Optional) Max tasks locked per fetch, default is 5
	MaxTasks int `yaml:"maxtasks,omitempty"`

	// (Optional) Delay between two polls, default is 5s
	PollInterval time.Duration `yaml:"pollinterval,omitempty"`

	// (Optional) A cron expression (e.g. "@every 10s") that replaces PollInterval
	Schedule string `yaml:"schedule,omitempty"`

	// (Optional) Whether the engine should honour task priority, default is true
	UsePriority *bool `yaml:"usepriority,omitempty"`

	// (Optional) Long polling timeout sent to the engine, default is no long polling
	AsyncResponseTimeout time.Duration `yaml:"asyncresponsetimeout,omitempty"`

	// (Optional) Subscribed topics, default is the three built-in relay topics
	Topics []Topic `yaml:"topics,omitempty"`
}

type Engine struct {
	// (Optional) The engine REST base URL, falls back to CAMUNDA_REST_URL
	BaseURL string `yaml:"baseurl,omitempty"`

	// (Optional) Timeout of a single engine call, default is 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type Downstream struct {
	// (Optional) The downstream API base URL of the fixed relays, falls back to FASTAPI_URL
	BaseURL string `yaml:"baseurl,omitempty"`

	// (Optional) Timeout of a relay call, default is 10s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type Log struct {
	// (Optional) debug, info, warn or error, default is info
	Level string `yaml:"level,omitempty"`

	// (Optional) json or console, default is json
	Format string `yaml:"format,omitempty"`
}

type Pg struct {
	// (Optional) The DSN of the audit database. If not set, task states are not recorded.
	DSN *string `yaml:"dsn,omitempty"`

	MaxConns int32 `yaml:"maxconns,omitempty"`
	MinConns int32 `yaml:"minconns,omitempty"`
}

type Server struct {
	// (Optional) Whether to disable the health and metrics server, default is false
	Disable bool `yaml:"disable,omitempty"`

	// (Optional) The port of the health and metrics server, default is 9020
	Port int `yaml:"port,omitempty"`
}

type Config struct {
	Worker Worker `yaml:"worker,omitempty"`

	Engine Engine `yaml:"engine,omitempty"`

	Downstream Downstream `yaml:"downstream,omitempty"`

	Log Log `yaml:"log,omitempty"`

	Pg Pg `yaml:"pg,omitempty"`

	Server Server `yaml:"server,omitempty"`
}

// Path of the yaml file read by NewConfig. An empty path disables the file.
type Path string

func DefaultPath() Path {
	if _, err := os.Stat(DefaultConfigPath); err != nil {
		return ""
	}
	return DefaultConfigPath
}

// NewConfig loads the yaml file (if any), overlays EW_ environment variables,
// fills defaults and validates the result. The returned config must be
// treated as read-only.
func NewConfig(path Path) (*Config, error) {
	c := &Config{}
	if err := conf.FetchConfig(string(path), EnvPrefix, c); err != nil {
		return nil, errors.Wrap(err, "failed to fetch config")
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func DefaultTopics() []Topic {
	return []Topic{
		{Name: extask.TopicHTTPRequest, OnFailure: ReportTerminal},
		{Name: extask.TopicSaveDB, OnFailure: LeaveForLease},
		{Name: extask.TopicSendEmail, OnFailure: LeaveForLease},
	}
}

func (c *Config) ApplyDefaults() {
	if c.Engine.BaseURL == "" {
		c.Engine.BaseURL = envOr(LegacyEngineURLEnv, DefaultEngineBaseURL)
	}
	if c.Engine.Timeout <= 0 {
		c.Engine.Timeout = DefaultEngineTimeout
	}
	if c.Downstream.BaseURL == "" {
		c.Downstream.BaseURL = envOr(LegacyDownstreamURLEnv, DefaultDownstreamBaseURL)
	}
	if c.Downstream.Timeout <= 0 {
		c.Downstream.Timeout = DefaultRelayTimeout
	}

	w := &c.Worker
	if w.ID == "" {
		w.ID = DefaultWorkerID
	}
	if w.MaxTasks == 0 {
		w.MaxTasks = DefaultMaxTasks
	}
	if w.PollInterval <= 0 {
		w.PollInterval = DefaultPollInterval
	}
	if w.UsePriority == nil {
		usePriority := true
		w.UsePriority = &usePriority
	}
	if len(w.Topics) == 0 {
		w.Topics = DefaultTopics()
	}
	for i := range w.Topics {
		t := &w.Topics[i]
		if t.LockDuration <= 0 {
			t.LockDuration = DefaultLockDuration
		}
		if t.RetryTimeout <= 0 {
			t.RetryTimeout = DefaultRetryTimeout
		}
		if t.OnFailure == "" {
			t.OnFailure = defaultPolicy(t.Name)
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Pg.MaxConns == 0 {
		c.Pg.MaxConns = 4
	}
	if c.Pg.MinConns == 0 {
		c.Pg.MinConns = 1
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultMetricsPort
	}
}

func (c *Config) Validate() error {
	if c.Worker.ID == "" {
		return errors.New("worker id must not be empty")
	}
	if c.Worker.MaxTasks <= 0 {
		return errors.Errorf("worker maxtasks must be positive, got %d", c.Worker.MaxTasks)
	}
	if c.Worker.Schedule != "" {
		if _, err := cron.ParseStandard(c.Worker.Schedule); err != nil {
			return errors.Wrapf(err, "invalid worker schedule %q", c.Worker.Schedule)
		}
	}
	seen := map[string]struct{}{}
	for _, t := range c.Worker.Topics {
		if t.Name == "" {
			return errors.New("topic name must not be empty")
		}
		if _, ok := seen[t.Name]; ok {
			return errors.Errorf("duplicate topic %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.OnFailure != ReportTerminal && t.OnFailure != LeaveForLease {
			return errors.Errorf("topic %q: unknown onfailure policy %q", t.Name, t.OnFailure)
		}
		if t.Retries < 0 {
			return errors.Errorf("topic %q: retries must not be negative", t.Name)
		}
	}
	return nil
}

// Topic returns the subscription for name.
func (c *Config) Topic(name string) (Topic, bool) {
	for _, t := range c.Worker.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return Topic{}, false
}

// Redacted returns a copy safe to print: credentials in the pg dsn are masked.
func (c *Config) Redacted() *Config {
	out := *c
	if c.Pg.DSN != nil {
		dsn := "<redacted>"
		if u, err := url.Parse(*c.Pg.DSN); err == nil && u.Scheme != "" {
			dsn = u.Redacted()
		}
		out.Pg.DSN = &dsn
	}
	return &out
}

func defaultPolicy(topic string) FailurePolicy {
	switch topic {
	case extask.TopicSaveDB, extask.TopicSendEmail:
		return LeaveForLease
	}
	return ReportTerminal
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
