// Package storage persists delivered alerts and recorded issues across
// monitor restarts. Persistence is opt-in: the monitor runs fully in
// memory unless a store is wired into the alert manager.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/driftwatch/driftwatch/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	alert_id    TEXT PRIMARY KEY,
	timestamp   TEXT NOT NULL,
	severity    TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	source      TEXT NOT NULL,
	category    TEXT NOT NULL,
	details     TEXT NOT NULL,
	metadata    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);

CREATE TABLE IF NOT EXISTS issues (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   TEXT NOT NULL,
	type        TEXT NOT NULL,
	description TEXT NOT NULL,
	severity    TEXT NOT NULL,
	details     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_issues_timestamp ON issues(timestamp);
`

// SQLiteStore is a sqlite-backed alert and issue store. Safe for
// concurrent use.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveAlert persists one delivered alert.
func (s *SQLiteStore) SaveAlert(ctx context.Context, a types.Alert) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("encoding alert details: %w", err)
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encoding alert metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alerts
		 (alert_id, timestamp, severity, title, description, source, category, details, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AlertID, a.Timestamp.UTC().Format(time.RFC3339Nano), string(a.Severity),
		a.Title, a.Description, a.Source, a.Category, string(details), string(metadata))
	if err != nil {
		return fmt.Errorf("inserting alert %s: %w", a.AlertID, err)
	}
	return nil
}

// SaveIssue persists one recorded issue.
func (s *SQLiteStore) SaveIssue(ctx context.Context, issue types.Issue) error {
	details, err := json.Marshal(issue.Details)
	if err != nil {
		return fmt.Errorf("encoding issue details: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO issues (timestamp, type, description, severity, details)
		 VALUES (?, ?, ?, ?, ?)`,
		issue.Timestamp.UTC().Format(time.RFC3339Nano), issue.Type,
		issue.Description, string(issue.Severity), string(details))
	if err != nil {
		return fmt.Errorf("inserting issue: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]types.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, timestamp, severity, title, description, source, category, details, metadata
		 FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var a types.Alert
		var ts, severity, details, metadata string
		if err := rows.Scan(&a.AlertID, &ts, &severity, &a.Title, &a.Description,
			&a.Source, &a.Category, &details, &metadata); err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		a.Severity = types.Severity(severity)
		if a.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing alert timestamp %q: %w", ts, err)
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, fmt.Errorf("decoding alert details: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decoding alert metadata: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// RecentIssues returns up to limit issues, newest first.
func (s *SQLiteStore) RecentIssues(ctx context.Context, limit int) ([]types.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, type, description, severity, details
		 FROM issues ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var issues []types.Issue
	for rows.Next() {
		var issue types.Issue
		var ts, severity, details string
		if err := rows.Scan(&ts, &issue.Type, &issue.Description, &severity, &details); err != nil {
			return nil, fmt.Errorf("scanning issue row: %w", err)
		}
		issue.Severity = types.Severity(severity)
		if issue.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing issue timestamp %q: %w", ts, err)
		}
		if err := json.Unmarshal([]byte(details), &issue.Details); err != nil {
			return nil, fmt.Errorf("decoding issue details: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
