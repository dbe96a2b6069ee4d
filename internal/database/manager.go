package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "quietlink/pkg/database"
	"quietlink/pkg/types"
)

// Manager is the SQLite room ledger
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the ledger, applies migrations and starts the writer
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	migrations := dbconfig.NewMigrationManager(db)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With("component", "ledger"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("ledger write failed, retrying", "delay", m.config.WriteRetryDelay, "error", err)
				time.Sleep(m.config.WriteRetryDelay)
				if err = op.operation(m.db); err != nil {
					m.logger.Error("ledger write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("ledger write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-timeout.C:
		return ErrWriteTimeout
	}
}

// RecordRoomEvent appends one room lifecycle event
func (m *Manager) RecordRoomEvent(ctx context.Context, event *types.RoomEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO room_events (room_id, session_id, peer_id, kind, instance_id, at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			event.RoomID,
			event.SessionID,
			event.PeerID,
			event.Kind,
			event.InstanceID,
			event.At.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert room event: %w", err)
		}
		return nil
	})
}

// RoomStats counts ledger entries per kind
// ARCHITECTURAL DISCOVERY: Read operations are concurrent and bypass the writer
func (m *Manager) RoomStats(ctx context.Context) (*types.RoomStats, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM room_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query room stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &types.RoomStats{}
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan room stats: %w", err)
		}
		switch kind {
		case types.RoomEventMatched:
			stats.Matched = count
		case types.RoomEventLeft:
			stats.Left = count
		case types.RoomEventDisconnected:
			stats.Disconnected = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room stats: %w", err)
	}
	return stats, nil
}

// RoomHistory returns the events of one room in order
func (m *Manager) RoomHistory(ctx context.Context, roomID string) ([]*types.RoomEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT room_id, session_id, peer_id, kind, instance_id, at
		FROM room_events
		WHERE room_id = ?
		ORDER BY id ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.RoomEvent
	for rows.Next() {
		var e types.RoomEvent
		if err := rows.Scan(&e.RoomID, &e.SessionID, &e.PeerID, &e.Kind, &e.InstanceID, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan room event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room events: %w", err)
	}
	return events, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_events LIMIT 1").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the ledger
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
