// Package journal persists completed interactions to SQLite so history
// survives restarts of the daemon.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT UNIQUE NOT NULL,
    source TEXT NOT NULL,
    role TEXT NOT NULL,
    transcript TEXT NOT NULL,
    intent TEXT NOT NULL,
    message TEXT,
    payload_kind TEXT NOT NULL,
    params TEXT,
    fallback INTEGER NOT NULL DEFAULT 0,
    processing_ms INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_intent ON interactions(intent);
`

// Record is one journaled interaction.
type Record struct {
	RequestID    string            `json:"requestId"`
	Source       string            `json:"source"`
	Role         string            `json:"role"`
	Transcript   string            `json:"transcript"`
	Intent       string            `json:"intent"`
	Message      string            `json:"message"`
	PayloadKind  string            `json:"payloadKind"`
	Params       map[string]string `json:"params,omitempty"`
	Fallback     bool              `json:"fallback"`
	ProcessingMS int64             `json:"processingMs"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Journal is a SQLite-backed interaction log.
type Journal struct {
	conn *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging journal: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Journal{conn: conn}, nil
}

func (j *Journal) Close() error {
	return j.conn.Close()
}

// Append stores r. Re-appending the same request ID is ignored.
func (j *Journal) Append(r Record) error {
	params := ""
	if len(r.Params) > 0 {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		params = string(b)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := j.conn.Exec(`
		INSERT OR IGNORE INTO interactions
			(request_id, source, role, transcript, intent, message, payload_kind, params, fallback, processing_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RequestID, r.Source, r.Role, r.Transcript, r.Intent, r.Message, r.PayloadKind, params,
		boolToInt(r.Fallback), r.ProcessingMS, created.UTC().Format(time.RFC3339Nano))
	return err
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.conn.Query(`
		SELECT request_id, source, role, transcript, intent, message, payload_kind, params, fallback, processing_ms, created_at
		FROM interactions
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			message  sql.NullString
			params   sql.NullString
			fallback int
			created  string
		)
		if err := rows.Scan(&r.RequestID, &r.Source, &r.Role, &r.Transcript, &r.Intent, &message,
			&r.PayloadKind, &params, &fallback, &r.ProcessingMS, &created); err != nil {
			return nil, err
		}
		r.Message = message.String
		r.Fallback = fallback != 0
		if params.String != "" {
			_ = json.Unmarshal([]byte(params.String), &r.Params)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarizes the journal.
type Stats struct {
	Total    int `json:"total"`
	Fallback int `json:"fallback"`
}

// Stats counts all and fallback interactions.
func (j *Journal) Stats() (Stats, error) {
	var s Stats
	err := j.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(fallback), 0) FROM interactions
	`).Scan(&s.Total, &s.Fallback)
	return s, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
