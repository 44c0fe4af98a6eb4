package api

import "time"

// Config configures the admin HTTP API server.
//
// The API exposes health probes and read-only status endpoints for
// operators and deployment tooling. It is optional; when disabled the
// process runs without any HTTP listener.
type Config struct {
	// Enabled controls whether the API server is started.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the listen address.
	// Default: 127.0.0.1 (the API is operator-facing, not public)
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
}
