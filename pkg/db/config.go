package db

import "time"

// Config describes how to reach the backing store.
type Config struct {
	// URL is the connection string; its scheme selects the backend.
	URL             string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Backends holds the per-engine option sets, resolved once at startup.
	Backends map[Backend]BackendOptions

	Metrics bool
	Tracing bool
}
