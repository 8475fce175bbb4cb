package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddress            = ":4001"
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultPingInterval       = 30 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReadLimit          = 1 << 20 // 1 MiB
	DefaultSendBufferSize     = 256
	DefaultSnapshotLimit      = 50
	DefaultPatternWindow      = 1 * time.Second
	DefaultPriceWindow        = 250 * time.Millisecond
	DefaultPollInterval       = 60 * time.Second
	DefaultPollLookback       = 5 * time.Minute
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultReconnectAttempts  = 10
	DefaultHealthPort         = 8080
	DefaultHealthPath         = "/healthz"
)

func (c *StreamConfig) applyDefaults() {
	// Server defaults
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// WebSocket defaults
	if c.WebSocket.PingInterval == 0 {
		c.WebSocket.PingInterval = DefaultPingInterval
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = DefaultWriteTimeout
	}
	if c.WebSocket.ReadLimit == 0 {
		c.WebSocket.ReadLimit = DefaultReadLimit
	}
	if c.WebSocket.SendBufferSize == 0 {
		c.WebSocket.SendBufferSize = DefaultSendBufferSize
	}
	if c.WebSocket.SnapshotLimit == 0 {
		c.WebSocket.SnapshotLimit = DefaultSnapshotLimit
	}

	// Batch defaults
	if c.Batch.PatternWindow == 0 {
		c.Batch.PatternWindow = DefaultPatternWindow
	}
	if c.Batch.PriceWindow == 0 {
		c.Batch.PriceWindow = DefaultPriceWindow
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Lookback == 0 {
		c.Poller.Lookback = DefaultPollLookback
	}

	// Reconnect defaults
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultReconnectAttempts
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
