package postgres

import (
	"sync/atomic"
	"time"
)

// PoolMetrics tracks connection and query statistics for the pool wrapper.
type PoolMetrics struct {
	TotalConnections      atomic.Int64
	ConnectionWaitTime    atomic.Int64 // nanoseconds
	QueryExecutionTime    atomic.Int64 // nanoseconds
	TotalQueries          atomic.Int64
	ConnectionErrors      atomic.Int64
	QueryErrors           atomic.Int64
	LastHealthCheck       atomic.Int64 // unix timestamp
	HealthCheckFailures   atomic.Int64
	IsHealthy             atomic.Bool
	SuccessfulConnections atomic.Int64
}

// PoolStats is a point-in-time snapshot of PoolMetrics.
type PoolStats struct {
	TotalConnections      int64
	ConnectionWaitTime    time.Duration
	QueryExecutionTime    time.Duration
	TotalQueries          int64
	ConnectionErrors      int64
	QueryErrors           int64
	LastHealthCheck       time.Time
	HealthCheckFailures   int64
	IsHealthy             bool
	SuccessfulConnections int64
}

// NewPoolMetrics returns a metrics struct that starts out healthy.
func NewPoolMetrics() *PoolMetrics {
	m := &PoolMetrics{}
	m.LastHealthCheck.Store(time.Now().Unix())
	m.IsHealthy.Store(true)
	return m
}

// Snapshot returns the current metrics values.
func (m *PoolMetrics) Snapshot() PoolStats {
	return PoolStats{
		TotalConnections:      m.TotalConnections.Load(),
		ConnectionWaitTime:    time.Duration(m.ConnectionWaitTime.Load()),
		QueryExecutionTime:    time.Duration(m.QueryExecutionTime.Load()),
		TotalQueries:          m.TotalQueries.Load(),
		ConnectionErrors:      m.ConnectionErrors.Load(),
		QueryErrors:           m.QueryErrors.Load(),
		LastHealthCheck:       time.Unix(m.LastHealthCheck.Load(), 0),
		HealthCheckFailures:   m.HealthCheckFailures.Load(),
		IsHealthy:             m.IsHealthy.Load(),
		SuccessfulConnections: m.SuccessfulConnections.Load(),
	}
}

func (m *PoolMetrics) RecordConnectionWait(d time.Duration) { m.ConnectionWaitTime.Add(d.Nanoseconds()) }

func (m *PoolMetrics) RecordQueryExecution(d time.Duration) {
	m.QueryExecutionTime.Add(d.Nanoseconds())
	m.TotalQueries.Add(1)
}

func (m *PoolMetrics) RecordConnectionError() { m.ConnectionErrors.Add(1) }

func (m *PoolMetrics) RecordQueryError() { m.QueryErrors.Add(1) }

func (m *PoolMetrics) RecordSuccessfulConnection() { m.SuccessfulConnections.Add(1) }

func (m *PoolMetrics) RecordHealthCheck(success bool) {
	m.LastHealthCheck.Store(time.Now().Unix())
	if !success {
		m.HealthCheckFailures.Add(1)
		m.IsHealthy.Store(false)
		return
	}
	m.IsHealthy.Store(true)
}

func (m *PoolMetrics) UpdateConnectionStats(total int64) { m.TotalConnections.Store(total) }
