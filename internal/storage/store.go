// Package storage persists sessions, episodes, decisions and the
// revenue ledger in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/models"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    symbol TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS episodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    episode INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    reward REAL NOT NULL,
    start_equity TEXT NOT NULL,
    end_equity TEXT NOT NULL,
    net TEXT NOT NULL,
    strategy TEXT,
    epsilon REAL,
    commentary TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(session_id, episode)
);

CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    episode INTEGER NOT NULL,
    step INTEGER NOT NULL,
    action TEXT NOT NULL,
    strategy TEXT,
    price TEXT NOT NULL,
    confidence REAL,
    reward REAL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS earnings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    strategy TEXT NOT NULL,
    symbol TEXT NOT NULL,
    gross TEXT NOT NULL,
    fees TEXT NOT NULL,
    net TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id, episode);
CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id, episode, step);
CREATE INDEX IF NOT EXISTS idx_earnings_session ON earnings(session_id, created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session models.SessionRecord) error {
	if session.Status == "" {
		session.Status = StatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, mode, symbol, status)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    mode=excluded.mode,
    symbol=excluded.symbol,
    status=excluded.status,
    updated_at=CURRENT_TIMESTAMP
`, session.ID, session.Mode, session.Symbol, session.Status)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(status) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, status, sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, mode, symbol, status, created_at, updated_at
FROM sessions
WHERE id = ?
LIMIT 1
`, sessionID)

	var rec models.SessionRecord
	if err := row.Scan(&rec.ID, &rec.Mode, &rec.Symbol, &rec.Status, &rec.StartedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

// ListSessions pages sessions newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, mode, symbol, status, created_at, updated_at
FROM sessions
ORDER BY rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.Symbol, &rec.Status, &rec.StartedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return sessions, nil
}

func (s *Store) SaveEpisode(ctx context.Context, ep models.EpisodeRecord) error {
	if strings.TrimSpace(ep.SessionID) == "" {
		return fmt.Errorf("episode session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO episodes (session_id, episode, steps, reward, start_equity, end_equity, net, strategy, epsilon, commentary)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, episode) DO UPDATE SET
    steps=excluded.steps,
    reward=excluded.reward,
    end_equity=excluded.end_equity,
    net=excluded.net,
    strategy=excluded.strategy,
    epsilon=excluded.epsilon,
    commentary=excluded.commentary
`, ep.SessionID, ep.Episode, ep.Steps, ep.Reward,
		ep.StartEquity.String(), ep.EndEquity.String(), ep.Net.String(),
		ep.Strategy, ep.Epsilon, ep.Commentary)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

func (s *Store) ListEpisodes(ctx context.Context, sessionID string, limit int) ([]models.EpisodeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, episode, steps, reward, start_equity, end_equity, net, strategy, epsilon, commentary, created_at
FROM episodes
WHERE (? = '' OR session_id = ?)
ORDER BY id DESC
LIMIT ?
`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []models.EpisodeRecord
	for rows.Next() {
		var (
			rec                    models.EpisodeRecord
			startEq, endEq, netStr string
		)
		if err := rows.Scan(&rec.RowID, &rec.SessionID, &rec.Episode, &rec.Steps, &rec.Reward,
			&startEq, &endEq, &netStr, &rec.Strategy, &rec.Epsilon, &rec.Commentary, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		rec.StartEquity, _ = decimal.NewFromString(startEq)
		rec.EndEquity, _ = decimal.NewFromString(endEq)
		rec.Net, _ = decimal.NewFromString(netStr)
		episodes = append(episodes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list episodes rows: %w", err)
	}
	return episodes, nil
}

func (s *Store) SaveDecision(ctx context.Context, d models.DecisionRecord) error {
	if strings.TrimSpace(d.SessionID) == "" {
		return fmt.Errorf("decision session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO decisions (session_id, episode, step, action, strategy, price, confidence, reward)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, d.SessionID, d.Episode, d.Step, d.Action, d.Strategy, d.Price.String(), d.Confidence, d.Reward)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *Store) SaveEarning(ctx context.Context, e models.EarningRecord) error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("earning session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO earnings (session_id, strategy, symbol, gross, fees, net)
VALUES (?, ?, ?, ?, ?, ?)
`, e.SessionID, e.Strategy, e.Symbol, e.Gross.String(), e.Fees.String(), e.Net.String())
	if err != nil {
		return fmt.Errorf("insert earning: %w", err)
	}
	return nil
}

func (s *Store) ListEarnings(ctx context.Context, sessionID string, limit int) ([]models.EarningRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, strategy, symbol, gross, fees, net, created_at
FROM earnings
WHERE (? = '' OR session_id = ?)
ORDER BY id DESC
LIMIT ?
`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list earnings: %w", err)
	}
	defer rows.Close()

	var earnings []models.EarningRecord
	for rows.Next() {
		var (
			rec               models.EarningRecord
			gross, fees, nets string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Strategy, &rec.Symbol, &gross, &fees, &nets, &rec.At); err != nil {
			return nil, fmt.Errorf("scan earning: %w", err)
		}
		rec.Gross, _ = decimal.NewFromString(gross)
		rec.Fees, _ = decimal.NewFromString(fees)
		rec.Net, _ = decimal.NewFromString(nets)
		earnings = append(earnings, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list earnings rows: %w", err)
	}
	return earnings, nil
}

// EarningsSummary aggregates the ledger per strategy.
type EarningsSummary struct {
	Strategy string          `json:"strategy"`
	Trades   int             `json:"trades"`
	Net      decimal.Decimal `json:"net"`
}

func (s *Store) SummarizeEarnings(ctx context.Context, sessionID string) ([]EarningsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT strategy, net
FROM earnings
WHERE (? = '' OR session_id = ?)
ORDER BY strategy, id
`, sessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("summarize earnings: %w", err)
	}
	defer rows.Close()

	byStrategy := make(map[string]*EarningsSummary)
	var order []string
	for rows.Next() {
		var strategy, netStr string
		if err := rows.Scan(&strategy, &netStr); err != nil {
			return nil, fmt.Errorf("scan earnings summary: %w", err)
		}
		net, _ := decimal.NewFromString(netStr)
		sum, ok := byStrategy[strategy]
		if !ok {
			sum = &EarningsSummary{Strategy: strategy}
			byStrategy[strategy] = sum
			order = append(order, strategy)
		}
		sum.Trades++
		sum.Net = sum.Net.Add(net)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize earnings rows: %w", err)
	}

	summaries := make([]EarningsSummary, 0, len(order))
	for _, strategy := range order {
		summaries = append(summaries, *byStrategy[strategy])
	}
	return summaries, nil
}
