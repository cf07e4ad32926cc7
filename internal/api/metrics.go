package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	rowsWritten    atomic.Int64
	rowsRead       atomic.Int64
	photosUploaded atomic.Int64
	photoBytes     atomic.Int64
	wsOpen         atomic.Int64
	wsTotal        atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds       float64 `json:"uptime_seconds"`
	Requests            int64   `json:"requests"`
	ServerErrors        int64   `json:"server_errors"`
	ClientErrors        int64   `json:"client_errors"`
	RowsWritten         int64   `json:"rows_written"`
	RowsRead            int64   `json:"rows_read"`
	PhotosUploaded      int64   `json:"photos_uploaded"`
	PhotoBytesUploaded  int64   `json:"photo_bytes_uploaded"`
	PresenceConnections int64   `json:"presence_connections"`
	PresenceTotal       int64   `json:"presence_total"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordRowsWritten adds n inserted, updated or deleted rows.
func (m *Metrics) RecordRowsWritten(n int64) {
	m.rowsWritten.Add(n)
}

// RecordRowsRead adds n rows returned by selects.
func (m *Metrics) RecordRowsRead(n int64) {
	m.rowsRead.Add(n)
}

// RecordPhoto counts one stored photo of size bytes.
func (m *Metrics) RecordPhoto(size int64) {
	m.photosUploaded.Add(1)
	m.photoBytes.Add(size)
}

// PresenceOpened counts a new presence connection.
func (m *Metrics) PresenceOpened() {
	m.wsOpen.Add(1)
	m.wsTotal.Add(1)
}

// PresenceClosed counts a presence connection going away.
func (m *Metrics) PresenceClosed() {
	m.wsOpen.Add(-1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:       time.Since(m.startTime).Seconds(),
		Requests:            m.requests.Load(),
		ServerErrors:        m.serverErrors.Load(),
		ClientErrors:        m.clientErrors.Load(),
		RowsWritten:         m.rowsWritten.Load(),
		RowsRead:            m.rowsRead.Load(),
		PhotosUploaded:      m.photosUploaded.Load(),
		PhotoBytesUploaded:  m.photoBytes.Load(),
		PresenceConnections: m.wsOpen.Load(),
		PresenceTotal:       m.wsTotal.Load(),
	}
}
