// Package config loads coro-http's process configuration: command-line
// flags for the common case, plus an optional TOML file for the settings
// worth persisting (listen address, cache path). The CA bundle is not read
// from the file.
//
// Grounded on the teacher's config/config.go (flag-based New()); the TOML
// file loader is new, adding github.com/BurntSushi/toml as the file-based
// config format for the optional -config overlay.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds coro-http's server and client engine settings.
type Config struct {
	Address      string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	Env          string

	MaxHeadBytes int
	LogLevel     string

	// CachePath, if set, is where the client engine persists the alt-svc
	// placeholder file the first time it establishes a connection — the
	// reduced, file-appears-here stand-in for CURLOPT_ALTSVC's cache.
	CachePath string

	// CABundle is an optional passthrough CA bundle; core/httpclient records
	// it but does not act on it, since TLS provisioning is out of scope.
	CABundle []byte `toml:"-"`

	// ConfigFile, if set via -config, is overlaid onto the config after flags
	// are parsed, so file values take precedence over flag defaults but not
	// over flags explicitly passed on the command line.
	ConfigFile string
}

// New loads configuration from flags, then from -config's TOML file if one
// was given.
func New() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Address, "address", "0.0.0.0", "HTTP server listen address")
	flag.IntVar(&cfg.Port, "port", 8080, "HTTP server port")
	flag.IntVar(&cfg.ReadTimeout, "read-timeout", 10, "HTTP read timeout (seconds)")
	flag.IntVar(&cfg.WriteTimeout, "write-timeout", 30, "HTTP write timeout (seconds)")
	flag.StringVar(&cfg.Env, "env", "development", "Environment (development/production)")
	flag.IntVar(&cfg.MaxHeadBytes, "max-head-bytes", 64*1024, "maximum bytes accepted for a request/response head")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug/info/warn/error)")
	flag.StringVar(&cfg.CachePath, "cache-path", "", "directory the client engine persists connection state under")
	flag.StringVar(&cfg.ConfigFile, "config", "", "optional TOML config file, overlaid on top of the flag defaults")

	flag.Parse()

	if cfg.ConfigFile != "" {
		explicit := map[string]string{}
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
		if err := cfg.overlayFile(cfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		for name, value := range explicit {
			flag.Set(name, value)
		}
	}

	return cfg
}

// LoadFile reads a TOML config file into a fresh Config, without touching
// flags — for callers (tests, alternate entry points) that want file-only
// configuration.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	var fileCfg Config
	if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if fileCfg.Address != "" {
		c.Address = fileCfg.Address
	}
	if fileCfg.Port != 0 {
		c.Port = fileCfg.Port
	}
	if fileCfg.ReadTimeout != 0 {
		c.ReadTimeout = fileCfg.ReadTimeout
	}
	if fileCfg.WriteTimeout != 0 {
		c.WriteTimeout = fileCfg.WriteTimeout
	}
	if fileCfg.Env != "" {
		c.Env = fileCfg.Env
	}
	if fileCfg.MaxHeadBytes != 0 {
		c.MaxHeadBytes = fileCfg.MaxHeadBytes
	}
	if fileCfg.LogLevel != "" {
		c.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.CachePath != "" {
		c.CachePath = fileCfg.CachePath
	}
	return nil
}
