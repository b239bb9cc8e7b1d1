// Package config holds the client options: defaults and environment
// variables first, then command-line flags bound on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

type Options struct {
	ServerURL         string        `env:"SERVER_URL"          envDefault:"http://localhost:8080"`
	DataDir           string        `env:"DATA_DIR"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"     envDefault:"10s"`
	ProbeInterval     time.Duration `env:"PROBE_INTERVAL"      envDefault:"15s"`
	MaxReplayAttempts int           `env:"MAX_REPLAY_ATTEMPTS" envDefault:"5"`
	ReplayRate        float64       `env:"REPLAY_RATE"         envDefault:"0"`
	CacheTTL          time.Duration `env:"CACHE_TTL"           envDefault:"30s"`
	LogLevel          string        `env:"LOG_LEVEL"           envDefault:"info"`
	SessionKey        string        `env:"SESSION_KEY"`
	SessionDuration   time.Duration `env:"SESSION_DURATION"    envDefault:"300m"`
	Offline           bool          `env:"OFFLINE"`
	QueueOnNetworkErr bool          `env:"QUEUE_ON_NETWORK_ERROR" envDefault:"true"`
}

// NewConfig reads the environment. Flags bound with BindFlags take
// precedence over it.
func NewConfig() (*Options, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Options, error) {
	o := &Options{}
	if err := env.ParseWithOptions(o, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if o.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		o.DataDir = filepath.Join(home, "backoffice")
	}
	return o, nil
}

// BindFlags registers the global flags on fs, defaulting to the current values.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ServerURL, "server", o.ServerURL, "back-office API URL")
	fs.StringVar(&o.DataDir, "data-dir", o.DataDir, "directory for the queue database, cache, session and log")
	fs.BoolVar(&o.Offline, "offline", o.Offline, "treat the backend as unreachable and queue every write")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level: debug, info, warn, error")
	fs.DurationVar(&o.RequestTimeout, "timeout", o.RequestTimeout, "timeout of a single backend request")
}

// Prepare creates the data directory.
func (o *Options) Prepare() error {
	if err := os.MkdirAll(o.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return nil
}

// Key seals the session file. Without SESSION_KEY it is derived from the
// data dir and host, so the file is only readable on this machine.
func (o *Options) Key() string {
	if o.SessionKey != "" {
		return o.SessionKey
	}
	host, _ := os.Hostname()
	return host + ":" + o.DataDir
}

func (o *Options) DBPath() string       { return filepath.Join(o.DataDir, "backoffice.db") }
func (o *Options) LogPath() string      { return filepath.Join(o.DataDir, "backoffice.log") }
func (o *Options) SessionPath() string  { return filepath.Join(o.DataDir, "session.dat") }
func (o *Options) SyncInfoPath() string { return filepath.Join(o.DataDir, "syncinfo.json") }
