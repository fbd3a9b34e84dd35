// Package journal persists conversion events that could not be delivered to
// the ad platform. The webhook has already answered 200 by the time a forward
// fails, so the journal is the only durable trace left for replay.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
)

// Entry is one journaled forward failure.
type Entry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Provider  string    `json:"provider"`
	OrderID   string    `json:"order_id"`
	EventName string    `json:"event_name"`
	EventID   string    `json:"event_id"`
	Payload   string    `json:"payload"`
	Error     string    `json:"error"`
}

// Journal is a local SQLite dead-letter store.
type Journal struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

const schema = `
CREATE TABLE IF NOT EXISTS forward_journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	provider TEXT NOT NULL,
	order_id TEXT NOT NULL,
	event_name TEXT NOT NULL,
	event_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	error TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forward_journal_order ON forward_journal(provider, order_id);
`

// New opens (or creates) the journal database at path.
func New(path string, logger *logging.ChanneledLogger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open forward journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize forward journal schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Record journals a failed forward. Journal failures are logged and swallowed:
// a broken local disk must not turn a delivered webhook into a 500.
func (j *Journal) Record(provider, orderID string, ev *attribution.Event, sendErr error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		j.logger.Alert().Error("Failed to encode event for journal",
			"error", err.Error(), "provider", provider, "orderId", orderID)
		return
	}

	_, err = j.db.Exec(
		`INSERT INTO forward_journal (created_at, provider, order_id, event_name, event_id, payload, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339),
		provider,
		orderID,
		ev.EventName,
		ev.EventID,
		string(payload),
		sendErr.Error(),
	)
	if err != nil {
		j.logger.Alert().Error("Failed to journal undelivered event",
			"error", err.Error(), "provider", provider, "orderId", orderID)
		return
	}

	j.logger.Attribution().Warn("Undelivered event journaled for replay",
		"provider", provider, "orderId", orderID, "eventName", ev.EventName)
}

// List returns the most recent entries, newest first.
func (j *Journal) List(limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := j.db.Query(
		`SELECT id, created_at, provider, order_id, event_name, event_id, payload, error
		 FROM forward_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &createdAt, &e.Provider, &e.OrderID, &e.EventName, &e.EventID, &e.Payload, &e.Error); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
