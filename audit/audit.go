// Package audit is an append-only diagnostic log of notifications the
// engine has emitted, backed by SQLite.
//
// This is deliberately write-only: nothing in this daemon reads the log
// back to reconstruct reservation state at startup. Persisting live
// engine state across restarts is explicitly out of scope for the
// negotiation engine; this table exists purely so an operator can answer
// "what happened to reservation 7 last night" after the fact, the same
// way this codebase's ancestor used SQLite to persist its own pool state
// (here repurposed from a read/write source-of-truth store into a
// history sink).
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maapnet/maapd/flowid"
	"github.com/maapnet/maapd/notify"
	"github.com/maapnet/maapd/statusjson"
)

// Log is an append-only sink for notifications.
type Log struct {
	db *sql.DB
}

// Open creates or attaches to the SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &Log{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	observed_at  INTEGER NOT NULL,
	flow_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	reservation_id INTEGER NOT NULL,
	result       TEXT NOT NULL,
	payload      TEXT NOT NULL
);
`

// Record appends n to the log, tagged with a correlation id and the
// monotonic-ish observation timestamp (nanoseconds, caller-supplied so
// the audit package never needs its own notion of wall time).
func (l *Log) Record(observedAtNanos int64, flow flowid.ID, n notify.Notification) error {
	payload, err := statusjson.MarshalNotification(n)
	if err != nil {
		return fmt.Errorf("audit: marshal notification: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO notifications (observed_at, flow_id, kind, reservation_id, result, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		observedAtNanos, flow.String(), n.Kind.String(), n.ID, n.Result.String(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("audit: insert notification: %w", err)
	}
	return nil
}

// Entry is one row read back from the log, used only for operator
// tooling (e.g. `maapd audit tail`), never by the engine itself.
type Entry struct {
	Seq           int64
	ObservedAt    int64
	FlowID        string
	Kind          string
	ReservationID uint32
	Result        string
	Payload       json.RawMessage
}

// Tail returns the most recent n entries, most recent last.
func (l *Log) Tail(n int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT seq, observed_at, flow_id, kind, reservation_id, result, payload
		 FROM notifications ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query tail: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload string
		if err := rows.Scan(&e.Seq, &e.ObservedAt, &e.FlowID, &e.Kind, &e.ReservationID, &e.Result, &payload); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
