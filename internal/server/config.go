package server

import "time"

// Config defines listener and session limits.
type Config struct {
	Addr            string
	AdminAddr       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxLineBytes    int
	CORSOrigins     []string
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":16050",
		ReadTimeout:     0,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxLineBytes:    64 * 1024,
	}
}

// WithDefaults fills zero-valued limits from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	return c
}
