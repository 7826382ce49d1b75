// Package config loads the settings of a Cate WebAPI client from a TOML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shaharia-lab/cate/observability"
	"github.com/shaharia-lab/cate/tasks"
	"github.com/shaharia-lab/cate/webapi"
	"golang.org/x/time/rate"
)

const (
	DefaultServiceAddress = "localhost"
	DefaultServicePort    = 9090
	DefaultPingInterval   = 30 * time.Second
)

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	// Backend is one of "logrus", "zap", "slog" or "std".
	Backend string `toml:"backend"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
}

// TasksConfig selects where task states are stored.
type TasksConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// WebAPIConfig describes how to reach, and optionally start, the WebAPI service.
type WebAPIConfig struct {
	// Command starts the service when it is not already running.
	Command        string `toml:"command"`
	ServiceAddress string `toml:"serviceAddress"`
	ServicePort    int    `toml:"servicePort"`
	ServiceFile    string `toml:"serviceFile"`
	Disabled       bool   `toml:"disabled"`

	FirstMessageID  int64         `toml:"firstMessageId"`
	FrameValidation bool          `toml:"frameValidation"`
	PingInterval    time.Duration `toml:"pingInterval"`
	// SendRateLimit is in frames per second; zero means unlimited.
	SendRateLimit float64 `toml:"sendRateLimit"`
	SendBurst     int     `toml:"sendBurst"`

	Logging LoggingConfig `toml:"logging"`
	Tasks   TasksConfig   `toml:"tasks"`
}

// Default returns the configuration used for keys missing from the file.
func Default() WebAPIConfig {
	return WebAPIConfig{
		ServiceAddress:  DefaultServiceAddress,
		ServicePort:     DefaultServicePort,
		FrameValidation: true,
		PingInterval:    DefaultPingInterval,
		SendBurst:       1,
		Logging: LoggingConfig{
			Backend: observability.BackendLogrus,
			Level:   "info",
			Format:  "text",
		},
		Tasks: TasksConfig{
			Driver: tasks.DriverMemory,
		},
	}
}

// Load reads the TOML file at path on top of Default and validates the result.
func Load(path string) (*WebAPIConfig, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the client cannot work with.
func (c *WebAPIConfig) Validate() error {
	var errs []error

	if c.ServiceAddress == "" {
		errs = append(errs, errors.New("serviceAddress required"))
	}
	if c.ServicePort <= 0 || c.ServicePort > 65535 {
		errs = append(errs, fmt.Errorf("servicePort %d out of range", c.ServicePort))
	}
	if c.FirstMessageID < 0 {
		errs = append(errs, errors.New("firstMessageId must not be negative"))
	}
	if c.PingInterval < 0 {
		errs = append(errs, errors.New("pingInterval must not be negative"))
	}
	if c.SendRateLimit < 0 {
		errs = append(errs, errors.New("sendRateLimit must not be negative"))
	}
	if c.SendRateLimit > 0 && c.SendBurst < 1 {
		errs = append(errs, errors.New("sendBurst must be at least 1"))
	}

	switch c.Tasks.Driver {
	case "", tasks.DriverMemory:
	case tasks.DriverSQLite, tasks.DriverPostgres:
		if c.Tasks.DSN == "" {
			errs = append(errs, fmt.Errorf("tasks.dsn required for driver %q", c.Tasks.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported tasks.driver %q", c.Tasks.Driver))
	}

	if err := observability.ValidateLoggerConfig(c.Logging.Backend, c.Logging.Level, c.Logging.Format); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *WebAPIConfig) hostPort() string {
	return net.JoinHostPort(c.ServiceAddress, strconv.Itoa(c.ServicePort))
}

// RESTURL returns the base URL of the service's REST endpoints.
func (c *WebAPIConfig) RESTURL() string {
	return "http://" + c.hostPort() + "/"
}

// WebSocketURL returns the URL the client connects to.
func (c *WebAPIConfig) WebSocketURL() string {
	return "ws://" + c.hostPort() + "/app"
}

// ClientOptions translates the configuration into webapi client options.
func (c *WebAPIConfig) ClientOptions() []webapi.ClientConfigOption {
	wsOpts := []webapi.WebSocketOption{webapi.UsePingInterval(c.PingInterval)}
	if c.SendRateLimit > 0 {
		wsOpts = append(wsOpts, webapi.UseSendRateLimit(rate.Limit(c.SendRateLimit), c.SendBurst))
	}

	return []webapi.ClientConfigOption{
		webapi.UseFirstMessageID(c.FirstMessageID),
		webapi.UseFrameValidation(c.FrameValidation),
		webapi.UseWebSocketOptions(wsOpts...),
	}
}
