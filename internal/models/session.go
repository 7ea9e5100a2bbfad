package models

import (
	"net"
	"strconv"
	"time"
)

// SessionConfig is the immutable configuration snapshot for one monitoring
// session. It is loaded once at session start and never mutated afterwards.
type SessionConfig struct {
	Host         string        `mapstructure:"host" json:"host"`
	Port         int           `mapstructure:"port" json:"port"`
	Username     string        `mapstructure:"username" json:"username"`
	Password     string        `mapstructure:"password" json:"-"`
	RemoteRoot   string        `mapstructure:"remote_root" json:"remote_root"`
	LocalRoot    string        `mapstructure:"local_root" json:"local_root"`
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	Include      []string      `mapstructure:"include" json:"include,omitempty"`
	Exclude      []string      `mapstructure:"exclude" json:"exclude,omitempty"`
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`
	ExplicitTLS  bool          `mapstructure:"explicit_tls" json:"explicit_tls"`
	ConfigName   string        `mapstructure:"config_name" json:"config_name,omitempty"`
}

// Addr returns the host:port dial address for the remote endpoint.
func (c SessionConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RunOnce reports whether the session should perform a single poll cycle
// and then stop, instead of looping on the poll interval.
func (c SessionConfig) RunOnce() bool {
	return c.PollInterval <= 0
}
