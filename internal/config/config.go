package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds configuration for the server binary.
type ServerConfig struct {
	Addr              string
	LogLevel          string
	CodeLength        int
	PendingLimit      int
	IdleTimeout       time.Duration
	SweepInterval     time.Duration
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
	MaxMessageBytes   int
}

// Default returns the server defaults: addr ":8080", 6-digit codes, a
// 256-frame pending cap per role, 10 minute idle timeout swept every minute,
// 30 second keepalive pings.
func Default() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		LogLevel:          "info",
		CodeLength:        6,
		PendingLimit:      256,
		IdleTimeout:       10 * time.Minute,
		SweepInterval:     60 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageBytes:   64 * 1024,
	}
}

// fileConfig mirrors ServerConfig for TOML decoding; durations are written as
// strings ("10m", "30s").
type fileConfig struct {
	Addr              string   `toml:"addr"`
	LogLevel          string   `toml:"log_level"`
	CodeLength        int      `toml:"code_length"`
	PendingLimit      int      `toml:"pending_limit"`
	IdleTimeout       duration `toml:"idle_timeout"`
	SweepInterval     duration `toml:"sweep_interval"`
	KeepaliveInterval duration `toml:"keepalive_interval"`
	WriteTimeout      duration `toml:"write_timeout"`
	MaxMessageBytes   int      `toml:"max_message_bytes"`
}

type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// ApplyFile overlays values from a TOML file onto c. Fields absent from the
// file keep their current values.
func (c *ServerConfig) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if fc.Addr != "" {
		c.Addr = fc.Addr
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.CodeLength > 0 {
		c.CodeLength = fc.CodeLength
	}
	if fc.PendingLimit > 0 {
		c.PendingLimit = fc.PendingLimit
	}
	if fc.IdleTimeout > 0 {
		c.IdleTimeout = time.Duration(fc.IdleTimeout)
	}
	if fc.SweepInterval > 0 {
		c.SweepInterval = time.Duration(fc.SweepInterval)
	}
	if fc.KeepaliveInterval > 0 {
		c.KeepaliveInterval = time.Duration(fc.KeepaliveInterval)
	}
	if fc.WriteTimeout > 0 {
		c.WriteTimeout = time.Duration(fc.WriteTimeout)
	}
	if fc.MaxMessageBytes > 0 {
		c.MaxMessageBytes = fc.MaxMessageBytes
	}
	return nil
}

// ApplyEnv overlays SONICSHARE_* environment variables onto c. Flags parsed
// by the command override these in turn.
func (c *ServerConfig) ApplyEnv() {
	if addr := os.Getenv("SONICSHARE_ADDR"); addr != "" {
		c.Addr = addr
	}
	if level := os.Getenv("SONICSHARE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if idle := os.Getenv("SONICSHARE_IDLE_TIMEOUT"); idle != "" {
		if v, err := time.ParseDuration(idle); err == nil && v > 0 {
			c.IdleTimeout = v
		}
	}
}
