// Package config loads the ventus YAML configuration file.
//
// A file only needs the keys it wants to change; everything else keeps
// the value from Default. Unknown keys are rejected.
//
//	log:
//	  level: debug
//	server:
//	  listen: ":2121"
//	  root: /srv/ventus
//	client:
//	  addr: 127.0.0.1:2121
//	  retries: 5
//	sync:
//	  local: ./photos
//	  remote: /photos
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of the binary.
type Config struct {
	Log    Log    `yaml:"log"`
	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
	Sync   Sync   `yaml:"sync"`
}

// Log configures the logrus output.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Server configures `ventus serve`.
type Server struct {
	Listen         string        `yaml:"listen"`
	Root           string        `yaml:"root"`
	PublicHost     string        `yaml:"public_host"`
	PassivePorts   [2]int        `yaml:"passive_ports"`
	MaxConnections int           `yaml:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	DataTimeout    time.Duration `yaml:"data_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
	BandwidthLimit int64         `yaml:"bandwidth_limit"`
	Welcome        string        `yaml:"welcome"`
}

// Client configures the connection used by `ventus sync` and `ventus ls`.
type Client struct {
	Addr           string        `yaml:"addr"`
	User           string        `yaml:"user"`
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ActiveMode     bool          `yaml:"active_mode"`
	BandwidthLimit int64         `yaml:"bandwidth_limit"`
}

// Sync configures the mirror engine.
type Sync struct {
	Local       string        `yaml:"local"`
	Remote      string        `yaml:"remote"`
	Concurrency int           `yaml:"concurrency"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Listen:      ":2121",
			Root:        ".",
			IdleTimeout: 5 * time.Minute,
			DataTimeout: 10 * time.Second,
			ChunkSize:   32 * 1024,
		},
		Client: Client{
			Addr:       "127.0.0.1:2121",
			User:       "testuser",
			Timeout:    10 * time.Second,
			Retries:    3,
			RetryDelay: 500 * time.Millisecond,
		},
		Sync: Sync{
			Local:       ".",
			Remote:      "/",
			Concurrency: 1,
			Debounce:    2 * time.Second,
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// An empty document yields the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = multierror.Append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("server.listen: %w", err))
	}
	if c.Server.Root == "" {
		errs = multierror.Append(errs, errors.New("server.root: must not be empty"))
	}
	if lo, hi := c.Server.PassivePorts[0], c.Server.PassivePorts[1]; lo != 0 || hi != 0 {
		if lo <= 1024 || hi < lo || hi > 65535 {
			errs = multierror.Append(errs, fmt.Errorf("server.passive_ports: invalid range [%d, %d]", lo, hi))
		}
	}
	if c.Server.MaxConnections < 0 {
		errs = multierror.Append(errs, errors.New("server.max_connections: must not be negative"))
	}
	if c.Server.DataTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("server.data_timeout: must be positive"))
	}
	if c.Server.ChunkSize <= 0 {
		errs = multierror.Append(errs, errors.New("server.chunk_size: must be positive"))
	}
	if c.Server.BandwidthLimit < 0 {
		errs = multierror.Append(errs, errors.New("server.bandwidth_limit: must not be negative"))
	}

	if _, _, err := net.SplitHostPort(c.Client.Addr); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("client.addr: %w", err))
	}
	if c.Client.User == "" {
		errs = multierror.Append(errs, errors.New("client.user: must not be empty"))
	}
	if c.Client.Timeout < 0 {
		errs = multierror.Append(errs, errors.New("client.timeout: must not be negative"))
	}
	if c.Client.Retries < 1 {
		errs = multierror.Append(errs, errors.New("client.retries: must be at least 1"))
	}
	if c.Client.RetryDelay < 0 {
		errs = multierror.Append(errs, errors.New("client.retry_delay: must not be negative"))
	}
	if c.Client.BandwidthLimit < 0 {
		errs = multierror.Append(errs, errors.New("client.bandwidth_limit: must not be negative"))
	}

	if c.Sync.Local == "" {
		errs = multierror.Append(errs, errors.New("sync.local: must not be empty"))
	}
	if c.Sync.Concurrency < 1 {
		errs = multierror.Append(errs, errors.New("sync.concurrency: must be at least 1"))
	}
	if c.Sync.Debounce < 0 {
		errs = multierror.Append(errs, errors.New("sync.debounce: must not be negative"))
	}

	return errs.ErrorOrNil()
}

// Logger builds a logrus logger from the Log section. Call Validate first.
func (c *Config) Logger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
