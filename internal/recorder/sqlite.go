package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"AegisVault/internal/model"
)

// SQLiteRecorder appends observations to a SQLite journal.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the journal database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite journal opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			seq         INTEGER NOT NULL,
			kind        TEXT    NOT NULL,
			at          INTEGER NOT NULL,
			account     TEXT,
			request_id  TEXT,
			amount      TEXT,
			tvl         TEXT,
			payload     TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_obs_kind ON observations(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_obs_account ON observations(account)`,
		`CREATE INDEX IF NOT EXISTS idx_obs_at ON observations(at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordObservation(obs *model.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	_, err = r.db.Exec(`INSERT INTO observations
		(recorded_at, seq, kind, at, account, request_id, amount, tvl, payload)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), obs.Seq, string(obs.Kind), obs.At.Unix(),
		obs.Account.Hex(), obs.RequestID, obs.Amount.String(), obs.TVL.String(),
		string(payload),
	)
	return err
}

// Recent returns the newest journal entries, newest first.
func (r *SQLiteRecorder) Recent(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT id, payload FROM observations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var payload string
		if err := rows.Scan(&e.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Observation); err != nil {
			return nil, fmt.Errorf("decode journal entry %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite journal")
	return r.db.Close()
}
