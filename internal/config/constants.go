package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Operator bearer sessions live until logout, expiry, or process restart.
const OperatorSessionTTL = 24 * time.Hour

// Capture code length; 8 chars over a 36-character alphabet is ~41 bits.
const CaptureCodeLength = 8

// Request body ceiling for the JSON API.
const MaxBodyBytes = 2 << 20

// Evidence upload ceiling. Short face videos stay well under this.
const MaxEvidenceBytes = 10 << 20
