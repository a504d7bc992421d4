package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/SettleGuard/settleguard/internal/ledger"
	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresLedgerStore provides read access to the externally-written ledger
// tables (revenue events, entries, chain links, balances) plus write access
// limited to integrity runs and the chain checkpoint. Ledger posting itself
// happens outside this subsystem.
type PostgresLedgerStore struct {
	db *sqlx.DB
}

func NewPostgresLedgerStore(db *sqlx.DB) *PostgresLedgerStore {
	store := &PostgresLedgerStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

// ensureSchema creates only the tables this subsystem owns. The ledger tables
// themselves belong to the posting collaborator.
func (s *PostgresLedgerStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_integrity_runs (
			id TEXT PRIMARY KEY,
			day_yyyymmdd TEXT NOT NULL,
			ok BOOLEAN NOT NULL,
			findings_json JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_integrity_runs_day ON ledger_integrity_runs(day_yyyymmdd, created_at DESC)`)
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_chain_checkpoint (
			singleton BOOLEAN PRIMARY KEY DEFAULT true,
			last_sequence_no BIGINT NOT NULL,
			last_hash TEXT NOT NULL,
			last_entry_id BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (s *PostgresLedgerStore) SumRevenueEvents(ctx context.Context, startSec, endSec int64) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowxContext(ctx, `
		SELECT SUM(amount_usdt) FROM revenue_events_v2
		WHERE created_at BETWEEN $1 AND $2
	`, startSec, endSec).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func (s *PostgresLedgerStore) SumLedgerRevenue(ctx context.Context, startMs, endMs int64) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowxContext(ctx, `
		SELECT SUM(amount_usdt) FROM economic_ledger_entries
		WHERE event_type = 'revenue' AND created_at BETWEEN $1 AND $2
	`, startMs, endMs).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// NegativeBalances returns all accounts below -threshold. Credit-namespace
// exemptions are applied by the caller, which owns the prefix allowlist.
func (s *PostgresLedgerStore) NegativeBalances(ctx context.Context, threshold float64) ([]model.AccountBalance, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT account_key, balance_usdt FROM economic_account_balances
		WHERE balance_usdt < $1
		ORDER BY account_key
	`, -threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.AccountBalance
	for rows.Next() {
		var b model.AccountBalance
		if err := rows.Scan(&b.AccountKey, &b.BalanceUSDT); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// LinksAfter returns chain links with sequence_no > afterSeq in chain order,
// joined with their ledger entries.
func (s *PostgresLedgerStore) LinksAfter(ctx context.Context, afterSeq int64, limit int) ([]ledger.ChainRow, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT c.ledger_entry_id, c.prev_hash, c.this_hash, c.sequence_no,
		       e.id, e.event_type, e.amount_usdt, e.account_key, e.created_at
		FROM economic_ledger_chain c
		JOIN economic_ledger_entries e ON e.id = c.ledger_entry_id
		WHERE c.sequence_no > $1
		ORDER BY c.sequence_no ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ChainRow
	for rows.Next() {
		var r ledger.ChainRow
		if err := rows.Scan(
			&r.Link.LedgerEntryID, &r.Link.PrevHash, &r.Link.ThisHash, &r.Link.SequenceNo,
			&r.Entry.ID, &r.Entry.EventType, &r.Entry.AmountUSDT, &r.Entry.AccountKey, &r.Entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OrphanEntryIDs returns ledger entries with id > afterEntryID that have no
// chain link at all.
func (s *PostgresLedgerStore) OrphanEntryIDs(ctx context.Context, afterEntryID int64) ([]int64, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT e.id FROM economic_ledger_entries e
		WHERE e.id > $1
		  AND NOT EXISTS (SELECT 1 FROM economic_ledger_chain c WHERE c.ledger_entry_id = e.id)
		ORDER BY e.id
	`, afterEntryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresLedgerStore) InsertIntegrityRun(ctx context.Context, run *model.IntegrityRun) error {
	if run == nil {
		return nil
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	findingsJSON, _ := json.Marshal(run.Findings)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_integrity_runs (id, day_yyyymmdd, ok, findings_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.Day, run.OK, findingsJSON, run.CreatedAt)
	return err
}

func (s *PostgresLedgerStore) LatestIntegrityRun(ctx context.Context) (*model.IntegrityRun, error) {
	var run model.IntegrityRun
	var findingsJSON []byte
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, day_yyyymmdd, ok, findings_json, created_at
		FROM ledger_integrity_runs
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Day, &run.OK, &findingsJSON, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(findingsJSON) > 0 {
		_ = json.Unmarshal(findingsJSON, &run.Findings)
	}
	if run.Findings == nil {
		run.Findings = []string{}
	}
	return &run, nil
}

// GetCheckpoint returns the verification watermark, or a zero checkpoint if
// the chain has never been verified.
func (s *PostgresLedgerStore) GetCheckpoint(ctx context.Context) (model.ChainCheckpoint, error) {
	var cp model.ChainCheckpoint
	err := s.db.QueryRowxContext(ctx, `
		SELECT last_sequence_no, last_hash, last_entry_id, updated_at
		FROM ledger_chain_checkpoint
	`).Scan(&cp.LastSequenceNo, &cp.LastHash, &cp.LastEntryID, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChainCheckpoint{LastSequenceNo: -1, LastHash: model.GenesisHash}, nil
	}
	if err != nil {
		return model.ChainCheckpoint{}, err
	}
	return cp, nil
}

func (s *PostgresLedgerStore) SaveCheckpoint(ctx context.Context, cp model.ChainCheckpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_chain_checkpoint (singleton, last_sequence_no, last_hash, last_entry_id, updated_at)
		VALUES (true, $1, $2, $3, $4)
		ON CONFLICT (singleton) DO UPDATE SET
			last_sequence_no = excluded.last_sequence_no,
			last_hash = excluded.last_hash,
			last_entry_id = excluded.last_entry_id,
			updated_at = excluded.updated_at
	`, cp.LastSequenceNo, cp.LastHash, cp.LastEntryID, cp.UpdatedAt)
	return err
}
