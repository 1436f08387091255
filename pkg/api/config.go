// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package api

import (
	"net"
	"strconv"
	"time"
)

// Config holds API server configuration
type Config struct {
	// Host is the address to bind to; loopback unless the policy API must
	// be reachable from elsewhere
	Host string `json:"host" yaml:"host"`

	// Port is the HTTP port to listen on (0 picks a free port)
	Port int `json:"port" yaml:"port"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds how long Stop waits for in-flight requests
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// LogLevel selects gin's mode: debug enables gin debug output
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns default API configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		EnableCORS:      false,
		LogLevel:        "info",
	}
}

// ListenAddr joins Host and Port, bracketing IPv6 hosts
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
