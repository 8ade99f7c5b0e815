package main

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Store records privacy-conscious site analytics in SQLite. Raw IPs and
// contact details are never written.
type Store struct {
	db          *sql.DB
	hashingSalt string
}

const schema = `
CREATE TABLE IF NOT EXISTS visitors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hashed_ip TEXT NOT NULL,
	user_agent TEXT,
	path TEXT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_visitors_timestamp ON visitors(timestamp);

CREATE TABLE IF NOT EXISTS chat_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	question TEXT NOT NULL,
	rule TEXT NOT NULL DEFAULT '',
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contact_submissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	success INTEGER NOT NULL,
	error TEXT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// OpenStore opens (or creates) the SQLite database at path. Use ":memory:"
// for a throwaway database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database, and SQLite only
	// allows one writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, hashingSalt: generateToken()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func generateToken() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate random token:", err)
	}
	return hex.EncodeToString(bytes)
}

// hashIP is stable for one process lifetime.
func (s *Store) hashIP(ip string) string {
	hash := sha256.New()
	hash.Write([]byte(ip + s.hashingSalt))
	return hex.EncodeToString(hash.Sum(nil))[:16]
}

func (s *Store) RecordVisit(ip, userAgent, path string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO visitors (hashed_ip, user_agent, path, timestamp)
		VALUES (?, ?, ?, ?)
	`, s.hashIP(ip), userAgent, path, at.UTC())
	return err
}

func (s *Store) RecordChatQuery(question, rule string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_queries (question, rule, timestamp) VALUES (?, ?, ?)
	`, question, rule, at.UTC())
	return err
}

func (s *Store) RecordContact(sendErr error, at time.Time) error {
	var errText any
	if sendErr != nil {
		errText = sendErr.Error()
	}
	_, err := s.db.Exec(`
		INSERT INTO contact_submissions (success, error, timestamp) VALUES (?, ?, ?)
	`, sendErr == nil, errText, at.UTC())
	return err
}

// CleanupOldVisitors removes visitor rows older than the retention window.
func (s *Store) CleanupOldVisitors(now time.Time, retention time.Duration) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM visitors WHERE timestamp < ?`, now.Add(-retention).UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type VisitorMetric struct {
	ID        int       `json:"id"`
	HashedIP  string    `json:"hashed_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

type PageStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

type QuestionStat struct {
	Question string `json:"question"`
	Count    int64  `json:"count"`
}

type AdminStats struct {
	TotalVisitors    int64           `json:"total_visitors"`
	UniqueVisitors   int64           `json:"unique_visitors"`
	VisitorsToday    int64           `json:"visitors_today"`
	VisitorsThisWeek int64           `json:"visitors_this_week"`
	TopPages         []PageStat      `json:"top_pages"`
	ChatQueries      int64           `json:"chat_queries"`
	UnansweredTop    []QuestionStat  `json:"unanswered_top"`
	ContactSuccesses int64           `json:"contact_successes"`
	ContactFailures  int64           `json:"contact_failures"`
	RecentVisitors   []VisitorMetric `json:"recent_visitors"`
}

// Stats gathers the admin dashboard numbers as of now.
func (s *Store) Stats(now time.Time) (*AdminStats, error) {
	stats := &AdminStats{}
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&stats.TotalVisitors, `SELECT COUNT(*) FROM visitors`, nil},
		{&stats.UniqueVisitors, `SELECT COUNT(DISTINCT hashed_ip) FROM visitors`, nil},
		{&stats.VisitorsToday, `SELECT COUNT(*) FROM visitors WHERE timestamp >= ?`, []any{startOfDay}},
		{&stats.VisitorsThisWeek, `SELECT COUNT(*) FROM visitors WHERE timestamp >= ?`, []any{now.Add(-7 * 24 * time.Hour)}},
		{&stats.ChatQueries, `SELECT COUNT(*) FROM chat_queries`, nil},
		{&stats.ContactSuccesses, `SELECT COUNT(*) FROM contact_submissions WHERE success = 1`, nil},
		{&stats.ContactFailures, `SELECT COUNT(*) FROM contact_submissions WHERE success = 0`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats query %q: %w", c.query, err)
		}
	}

	rows, err := s.db.Query(`
		SELECT path, COUNT(*) AS views FROM visitors
		GROUP BY path ORDER BY views DESC, path ASC LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p PageStat
		if err := rows.Scan(&p.Path, &p.Views); err != nil {
			continue
		}
		stats.TopPages = append(stats.TopPages, p)
	}
	rows.Close()

	rows, err = s.db.Query(`
		SELECT LOWER(question) AS q, COUNT(*) AS n FROM chat_queries
		WHERE rule = '' GROUP BY q ORDER BY n DESC, q ASC LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var q QuestionStat
		if err := rows.Scan(&q.Question, &q.Count); err != nil {
			continue
		}
		stats.UnansweredTop = append(stats.UnansweredTop, q)
	}
	rows.Close()

	recent, err := s.RecentVisitors(50)
	if err != nil {
		return nil, err
	}
	stats.RecentVisitors = recent

	return stats, nil
}

func (s *Store) RecentVisitors(limit int) ([]VisitorMetric, error) {
	rows, err := s.db.Query(`
		SELECT id, hashed_ip, user_agent, path, timestamp
		FROM visitors
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visitors []VisitorMetric
	for rows.Next() {
		var v VisitorMetric
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &v.Timestamp); err != nil {
			continue
		}
		visitors = append(visitors, v)
	}
	return visitors, rows.Err()
}
