// Package store persists scan results. Every write is an independent upsert
// (or append for files), so concurrent session tasks can hit it safely.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Server status values. A host's status is terminal once recorded for a run.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Store provides write access to scan records and summary reads.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// AddServer inserts or updates a server record keyed by host and returns its
// id. On conflict the status, type, version, and scan time are replaced
// (last writer wins).
func (s *Store) AddServer(ctx context.Context, host, status, serverType, version string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO servers (host, last_scan, status, type, version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			last_scan = excluded.last_scan,
			status = excluded.status,
			type = excluded.type,
			version = excluded.version
		RETURNING id
	`, host, time.Now().UTC().Format(time.RFC3339), status, nullable(serverType), nullable(version))

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("adding server %s: %w", host, err)
	}
	return id, nil
}

// AddDirectory inserts or updates a directory record keyed by (server, path)
// and returns its id. On conflict only the scan time is refreshed.
func (s *Store) AddDirectory(ctx context.Context, serverID int64, path string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO directories (server_id, path, last_scan)
		VALUES (?, ?, ?)
		ON CONFLICT(server_id, path) DO UPDATE SET
			last_scan = excluded.last_scan
		RETURNING id
	`, serverID, path, time.Now().UTC().Format(time.RFC3339))

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("adding directory %s: %w", path, err)
	}
	return id, nil
}

// AddFile appends a file record under a directory. Size, modified, and
// permissions may be nil when the listing did not yield them.
func (s *Store) AddFile(ctx context.Context, directoryID int64, name string, size *int64, modified *time.Time, permissions *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (directory_id, name, size, modified, permissions)
		VALUES (?, ?, ?, ?, ?)
	`, directoryID, name, size, formatNullableTime(modified), permissions)
	if err != nil {
		return fmt.Errorf("adding file %s: %w", name, err)
	}
	return nil
}

// Summary holds aggregate counts over everything persisted so far.
type Summary struct {
	TotalServers      int64
	SuccessfulServers int64
	TotalDirectories  int64
	TotalFiles        int64
	TotalSize         int64
}

// Summary reports aggregate counts. It is meant for reporting after a run,
// not for reads during scanning.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary

	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM servers),
			(SELECT COUNT(*) FROM servers WHERE status = ?),
			(SELECT COUNT(*) FROM directories),
			(SELECT COUNT(*) FROM files),
			(SELECT COALESCE(SUM(size), 0) FROM files)
	`, StatusSuccess)
	if err := row.Scan(&sum.TotalServers, &sum.SuccessfulServers, &sum.TotalDirectories, &sum.TotalFiles, &sum.TotalSize); err != nil {
		return Summary{}, fmt.Errorf("reading summary: %w", err)
	}

	return sum, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
