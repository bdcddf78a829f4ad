package store

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
)

// AuditStore keeps a diagnostic trail of every planner outcome in
// sqlite. This is not conversational memory — the conversation window
// lives in-process only — it exists so raw model responses and
// fallback decisions can be inspected after the fact.
type AuditStore struct {
	DB *sql.DB
}

// PlanRecord is one audited planner call.
type PlanRecord struct {
	ID          int
	SessionID   string
	Question    string
	Goal        string
	Fallback    bool
	RawResponse string
	CreatedAt   string
}

func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS plan_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		question TEXT,
		goal TEXT,
		fallback INTEGER DEFAULT 0,
		raw_response TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}

	return &AuditStore{DB: db}, nil
}

func (s *AuditStore) RecordPlan(sessionID, question, goal string, fallback bool, rawResponse string) error {
	query := `INSERT INTO plan_audit (session_id, question, goal, fallback, raw_response) VALUES (?, ?, ?, ?, ?)`
	_, err := s.DB.Exec(query, sessionID, question, goal, fallback, rawResponse)
	return err
}

// RecentPlans returns the latest audited plans for a session in
// chronological order.
func (s *AuditStore) RecentPlans(sessionID string, limit int) ([]PlanRecord, error) {
	query := `SELECT id, session_id, question, goal, fallback, raw_response, created_at
		FROM plan_audit WHERE session_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.Query(query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PlanRecord
	for rows.Next() {
		var rec PlanRecord
		var fallback int
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Question, &rec.Goal, &fallback, &rec.RawResponse, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Fallback = fallback != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// FallbackCount reports how many audited plans for a session were
// fallbacks, a quick health signal for the planner.
func (s *AuditStore) FallbackCount(sessionID string) (int, error) {
	var count int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM plan_audit WHERE session_id = ? AND fallback = 1`, sessionID).Scan(&count)
	return count, err
}

func (s *AuditStore) Close() error {
	return s.DB.Close()
}
