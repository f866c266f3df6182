package postgres

import "errors"

// Sentinel errors surfaced by the pool wrapper. The router's handlers report
// any failed statement, these included, as "database" kind errors (§7).
var (
	ErrNotConnected     = errors.New("database pool is not connected")
	ErrConnectionClosed = errors.New("database connection pool is closed")
	ErrConnectionFailed = errors.New("failed to connect to database")
	ErrInvalidConfig    = errors.New("invalid database configuration")
	ErrHealthCheckFailed = errors.New("database health check failed")
)
