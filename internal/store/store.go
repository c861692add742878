package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Message roles stored in messages.role.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

const defaultHistoryLimit = 100

// Store is the Postgres-backed conversation record: users keyed by their
// session token, their chat messages and the pages generated for them.
type Store struct {
	DB *sql.DB
}

type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type PageRecord struct {
	PageID    string    `json:"page_id"`
	SiteType  string    `json:"site_type"`
	Prompt    string    `json:"prompt"`
	HTMLFile  string    `json:"html_file"`
	JSONFile  string    `json:"json_file"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// EnsureUser returns the id of the user owning sessionID, creating the row
// on first sight.
func (s *Store) EnsureUser(ctx context.Context, sessionID string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO users (session_id) VALUES ($1)
ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
RETURNING id`, sessionID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}

func (s *Store) AppendMessage(ctx context.Context, userID, role, content string) (Message, error) {
	if role != RoleUser && role != RoleAgent {
		return Message{}, fmt.Errorf("append message: unknown role %q", role)
	}
	m := Message{Role: role, Content: content}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO messages (user_id, role, content) VALUES ($1,$2,$3) RETURNING id, created_at`,
		userID, role, content).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

func (s *Store) RecordPage(ctx context.Context, userID string, p PageRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO pages (user_id, page_id, site_type, prompt, html_file, json_file)
VALUES ($1,$2,$3,$4,$5,$6)`,
		userID, p.PageID, p.SiteType, p.Prompt, p.HTMLFile, p.JSONFile)
	if err != nil {
		return fmt.Errorf("record page %s: %w", p.PageID, err)
	}
	return nil
}

// ListMessages returns the most recent limit messages of a session, oldest
// first. limit <= 0 uses a default of 100.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, role, content, created_at FROM (
  SELECT m.id, m.role, m.content, m.created_at
  FROM messages m JOIN users u ON u.id = m.user_id
  WHERE u.session_id = $1
  ORDER BY m.id DESC
  LIMIT $2
) recent ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListPagesBySession(ctx context.Context, sessionID string) ([]PageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT p.page_id, p.site_type, p.prompt, p.html_file, p.json_file, p.created_at
FROM pages p JOIN users u ON u.id = p.user_id
WHERE u.session_id = $1
ORDER BY p.id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	out := []PageRecord{}
	for rows.Next() {
		var p PageRecord
		if err := rows.Scan(&p.PageID, &p.SiteType, &p.Prompt, &p.HTMLFile, &p.JSONFile, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
