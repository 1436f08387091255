// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1", cfg.Host, "policy API must default to loopback")
	assert.False(t, cfg.EnableCORS)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestConfig_ListenAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 8080, "127.0.0.1:8080"},
		{"", 9090, ":9090"},
		{"::1", 0, "[::1]:0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := &Config{Host: tt.host, Port: tt.port}
			assert.Equal(t, tt.want, cfg.ListenAddr())
		})
	}
}
