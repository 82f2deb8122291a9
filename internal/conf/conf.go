// Package conf holds the runtime configuration structs scanned from
// configs/config.yaml (with environment overrides) via kratos config.
package conf

import "time"

// Bootstrap is the root configuration document.
type Bootstrap struct {
	Server    *Server    `json:"server"`
	Data      *Data      `json:"data"`
	Auth      *Auth      `json:"auth"`
	RateLimit *RateLimit `json:"rate_limit"`
}

// Server configures the HTTP transport.
type Server struct {
	HTTP HTTPServer `json:"http"`
}

// HTTPServer mirrors the kratos http server options.
type HTTPServer struct {
	Network     string `json:"network"`
	Addr        string `json:"addr"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// Timeout returns the request timeout, defaulting to 15s.
func (h HTTPServer) Timeout() time.Duration {
	if h.TimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(h.TimeoutSecs) * time.Second
}

// Data configures the backing stores.
type Data struct {
	Database Database `json:"database"`
	Redis    Redis    `json:"redis"`
}

// Database configures the Postgres connection.
type Database struct {
	Source          string `json:"source"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifeSecs int    `json:"conn_max_life_secs"`
}

// Redis configures the optional cache. An empty Addr disables it.
type Redis struct {
	Addr             string `json:"addr"`
	ReadTimeoutSecs  int    `json:"read_timeout_secs"`
	WriteTimeoutSecs int    `json:"write_timeout_secs"`
}

// ReadTimeout returns the redis read timeout, defaulting to 200ms.
func (r Redis) ReadTimeout() time.Duration {
	if r.ReadTimeoutSecs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(r.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the redis write timeout, defaulting to 200ms.
func (r Redis) WriteTimeout() time.Duration {
	if r.WriteTimeoutSecs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(r.WriteTimeoutSecs) * time.Second
}

// Auth carries the bearer token required on mutation requests. Empty
// disables the check (local development).
type Auth struct {
	Token string `json:"token"`
}

// RateLimit configures the per-rater mutation limiter. A non-positive
// MutationsPerMinute disables it.
type RateLimit struct {
	MutationsPerMinute int `json:"mutations_per_minute"`
	Burst              int `json:"burst"`
}
