package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"AegisVault/internal/model"
)

// SQLiteStore persists vault state in relational tables, one transaction per
// mutation.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; readers share the WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			total_assets TEXT    NOT NULL,
			total_shares TEXT    NOT NULL,
			paused       INTEGER NOT NULL DEFAULT 0,
			pause_reason TEXT    NOT NULL DEFAULT '',
			owner        TEXT    NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			address         TEXT PRIMARY KEY,
			shares          TEXT    NOT NULL,
			pending_request TEXT    NOT NULL DEFAULT '',
			insight_ts      INTEGER NOT NULL DEFAULT 0,
			recommendation  TEXT    NOT NULL DEFAULT '',
			confidence      INTEGER NOT NULL DEFAULT 0,
			risk_level      TEXT    NOT NULL DEFAULT '',
			reasoning       TEXT    NOT NULL DEFAULT '',
			suggested       TEXT    NOT NULL DEFAULT '',
			insight_model   INTEGER NOT NULL DEFAULT 0,
			updated_at      INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS models (
			id         INTEGER PRIMARY KEY,
			version    TEXT    NOT NULL,
			accuracy   INTEGER NOT NULL,
			active     INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_models_single_active ON models(active) WHERE active = 1`,

		`CREATE TABLE IF NOT EXISTS registry (
			id              INTEGER PRIMARY KEY CHECK (id = 1),
			active_model_id INTEGER NOT NULL REFERENCES models(id)
		)`,

		`CREATE TABLE IF NOT EXISTS upkeep_state (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			last_analysis_time INTEGER NOT NULL,
			analysis_interval  INTEGER NOT NULL,
			min_tvl            TEXT    NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS pending_requests (
			request_id    TEXT PRIMARY KEY,
			account       TEXT    NOT NULL UNIQUE,
			issued_at     INTEGER NOT NULL,
			model_id      INTEGER NOT NULL REFERENCES models(id),
			model_version TEXT    NOT NULL,
			asset_type    TEXT    NOT NULL DEFAULT '',
			risk_profile  TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_issued ON pending_requests(issued_at)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

// Load reads the full state. It returns nil when the vault was never
// initialised.
func (s *SQLiteStore) Load(ctx context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &model.Snapshot{}

	var assets, shares, owner string
	var paused int
	err := s.db.QueryRowContext(ctx,
		`SELECT total_assets, total_shares, paused, pause_reason, owner FROM ledger WHERE id = 1`,
	).Scan(&assets, &shares, &paused, &snap.Ledger.PauseReason, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if snap.Ledger.TotalAssets, err = parseInt(assets); err != nil {
		return nil, fmt.Errorf("ledger total_assets: %w", err)
	}
	if snap.Ledger.TotalShares, err = parseInt(shares); err != nil {
		return nil, fmt.Errorf("ledger total_shares: %w", err)
	}
	snap.Ledger.Paused = paused != 0
	snap.Ledger.Owner = common.HexToAddress(owner)

	if snap.Accounts, err = s.loadAccounts(ctx); err != nil {
		return nil, err
	}
	if snap.Models, err = s.loadModels(ctx); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT active_model_id FROM registry WHERE id = 1`).Scan(&snap.ActiveModelID); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	var minTVL string
	if err := s.db.QueryRowContext(ctx,
		`SELECT last_analysis_time, analysis_interval, min_tvl FROM upkeep_state WHERE id = 1`,
	).Scan(&snap.Upkeep.LastAnalysisTime, &snap.Upkeep.AnalysisInterval, &minTVL); err != nil {
		return nil, fmt.Errorf("load upkeep: %w", err)
	}
	if snap.Upkeep.MinTVLToAnalyze, err = parseInt(minTVL); err != nil {
		return nil, fmt.Errorf("upkeep min_tvl: %w", err)
	}

	if snap.Pending, err = s.loadPending(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStore) loadAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, shares, pending_request, insight_ts,
		recommendation, confidence, risk_level, reasoning, suggested, insight_model
		FROM accounts ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		var addr, shares, rec, risk string
		if err := rows.Scan(&addr, &shares, &a.PendingRequest, &a.Insight.Timestamp,
			&rec, &a.Insight.Confidence, &risk, &a.Insight.Reasoning, &a.Insight.SuggestedAction, &a.Insight.ModelID); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Address = common.HexToAddress(addr)
		if a.Shares, err = parseInt(shares); err != nil {
			return nil, fmt.Errorf("account %s shares: %w", addr, err)
		}
		a.Insight.Recommendation = model.Recommendation(rec)
		a.Insight.RiskLevel = model.RiskLevel(risk)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadModels(ctx context.Context) ([]model.AdvisoryModel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, version, accuracy, active, created_at FROM models ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	defer rows.Close()

	var out []model.AdvisoryModel
	for rows.Next() {
		var m model.AdvisoryModel
		var active int
		if err := rows.Scan(&m.ID, &m.Version, &m.Accuracy, &active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		m.Active = active != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadPending(ctx context.Context) ([]model.PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT request_id, account, issued_at, model_id, model_version,
		asset_type, risk_profile FROM pending_requests ORDER BY issued_at, request_id`)
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}
	defer rows.Close()

	var out []model.PendingRequest
	for rows.Next() {
		var p model.PendingRequest
		var account string
		if err := rows.Scan(&p.RequestID, &account, &p.IssuedAt, &p.ModelID, &p.ModelVersion,
			&p.AssetType, &p.RiskProfile); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.Account = common.HexToAddress(account)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Apply writes m in a single transaction.
func (s *SQLiteStore) Apply(ctx context.Context, m model.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	if l := m.Ledger; l != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger
			(id, total_assets, total_shares, paused, pause_reason, owner, updated_at)
			VALUES (1,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				total_assets = excluded.total_assets,
				total_shares = excluded.total_shares,
				paused       = excluded.paused,
				pause_reason = excluded.pause_reason,
				owner        = excluded.owner,
				updated_at   = excluded.updated_at`,
			l.TotalAssets.String(), l.TotalShares.String(), boolInt(l.Paused), l.PauseReason, l.Owner.Hex(), now,
		); err != nil {
			return fmt.Errorf("upsert ledger: %w", err)
		}
	}

	for _, a := range m.Accounts {
		in := a.Insight
		if _, err := tx.ExecContext(ctx, `INSERT INTO accounts
			(address, shares, pending_request, insight_ts, recommendation, confidence, risk_level,
			 reasoning, suggested, insight_model, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(address) DO UPDATE SET
				shares          = excluded.shares,
				pending_request = excluded.pending_request,
				insight_ts      = excluded.insight_ts,
				recommendation  = excluded.recommendation,
				confidence      = excluded.confidence,
				risk_level      = excluded.risk_level,
				reasoning       = excluded.reasoning,
				suggested       = excluded.suggested,
				insight_model   = excluded.insight_model,
				updated_at      = excluded.updated_at`,
			a.Address.Hex(), a.Shares.String(), a.PendingRequest, in.Timestamp,
			string(in.Recommendation), in.Confidence, string(in.RiskLevel),
			in.Reasoning, in.SuggestedAction, in.ModelID, now,
		); err != nil {
			return fmt.Errorf("upsert account %s: %w", a.Address.Hex(), err)
		}
	}

	// Deactivations first so the single-active index never sees two rows.
	for _, md := range orderForUpsert(m.Models) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO models (id, version, accuracy, active, created_at)
			VALUES (?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				version  = excluded.version,
				accuracy = excluded.accuracy,
				active   = excluded.active`,
			md.ID, md.Version, md.Accuracy, boolInt(md.Active), md.CreatedAt,
		); err != nil {
			return fmt.Errorf("upsert model %d: %w", md.ID, err)
		}
	}

	if m.ActiveModelID != 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO registry (id, active_model_id) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET active_model_id = excluded.active_model_id`,
			m.ActiveModelID,
		); err != nil {
			return fmt.Errorf("update registry: %w", err)
		}
	}

	if u := m.Upkeep; u != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO upkeep_state
			(id, last_analysis_time, analysis_interval, min_tvl) VALUES (1,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				last_analysis_time = excluded.last_analysis_time,
				analysis_interval  = excluded.analysis_interval,
				min_tvl            = excluded.min_tvl`,
			u.LastAnalysisTime, u.AnalysisInterval, u.MinTVLToAnalyze.String(),
		); err != nil {
			return fmt.Errorf("upsert upkeep: %w", err)
		}
	}

	for _, id := range m.DeletePending {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_requests WHERE request_id = ?`, id); err != nil {
			return fmt.Errorf("delete pending %s: %w", id, err)
		}
	}
	for _, p := range m.PutPending {
		if _, err := tx.ExecContext(ctx, `INSERT INTO pending_requests
			(request_id, account, issued_at, model_id, model_version, asset_type, risk_profile)
			VALUES (?,?,?,?,?,?,?)`,
			p.RequestID, p.Account.Hex(), p.IssuedAt, p.ModelID, p.ModelVersion, p.AssetType, p.RiskProfile,
		); err != nil {
			return fmt.Errorf("insert pending %s: %w", p.RequestID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sqlite store")
	return s.db.Close()
}

func orderForUpsert(models []model.AdvisoryModel) []model.AdvisoryModel {
	out := make([]model.AdvisoryModel, 0, len(models))
	for _, m := range models {
		if !m.Active {
			out = append(out, m)
		}
	}
	for _, m := range models {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
