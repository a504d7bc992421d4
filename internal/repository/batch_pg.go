package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresBatchRepo persists settlement batches and their items. Status
// updates are guarded so the monotonic state machine cannot be violated
// even under concurrent pollers.
type PostgresBatchRepo struct {
	db *sqlx.DB
}

func NewPostgresBatchRepo(db *sqlx.DB) *PostgresBatchRepo {
	repo := &PostgresBatchRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresBatchRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_batches (
			id TEXT PRIMARY KEY,
			adapter_name TEXT NOT NULL,
			status TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			tx_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_batch_items (
			batch_id TEXT NOT NULL REFERENCES settlement_batches(id),
			wallet TEXT NOT NULL,
			amount_usdt DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (batch_id, wallet)
		)
	`)
	return err
}

func (r *PostgresBatchRepo) Insert(ctx context.Context, batch *model.SettlementBatch) error {
	if batch == nil {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_batches (id, adapter_name, status, external_id, tx_hash, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, batch.ID, batch.AdapterName, batch.Status, batch.ExternalID, batch.TxHash, batch.CreatedAt, batch.CompletedAt)
	if err != nil {
		return err
	}
	for _, it := range batch.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO settlement_batch_items (batch_id, wallet, amount_usdt)
			VALUES ($1, $2, $3)
			ON CONFLICT (batch_id, wallet) DO NOTHING
		`, batch.ID, it.Wallet, it.AmountUSDT)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresBatchRepo) Get(ctx context.Context, id string) (*model.SettlementBatch, error) {
	var b model.SettlementBatch
	err := r.db.QueryRowxContext(ctx, `
		SELECT id, adapter_name, status, external_id, tx_hash, created_at, completed_at
		FROM settlement_batches WHERE id = $1
	`, id).Scan(&b.ID, &b.AdapterName, &b.Status, &b.ExternalID, &b.TxHash, &b.CreatedAt, &b.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT wallet, amount_usdt FROM settlement_batch_items
		WHERE batch_id = $1 ORDER BY wallet
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.BatchItem
		if err := rows.Scan(&it.Wallet, &it.AmountUSDT); err != nil {
			return nil, err
		}
		b.Items = append(b.Items, it)
	}
	return &b, rows.Err()
}

// UpdateStatus applies a transition only if it is legal from the currently
// persisted status. Returns the row's status after the attempt.
func (r *PostgresBatchRepo) UpdateStatus(ctx context.Context, id string, next model.BatchStatus, externalID, txHash string) (model.BatchStatus, error) {
	var completedAt any
	if next.Terminal() {
		completedAt = time.Now().UTC()
	}

	// Legal predecessors per target state keeps the guard in one place.
	var allowedFrom []string
	switch next {
	case model.BatchProcessing:
		allowedFrom = []string{string(model.BatchPending)}
	case model.BatchCompleted, model.BatchFailed:
		allowedFrom = []string{string(model.BatchPending), string(model.BatchProcessing)}
	case model.BatchCanceled:
		allowedFrom = []string{string(model.BatchPending)}
	default:
		return "", errors.New("invalid target status")
	}

	query, args, err := sqlx.In(`
		UPDATE settlement_batches
		SET status = ?, external_id = COALESCE(NULLIF(?, ''), external_id),
		    tx_hash = COALESCE(NULLIF(?, ''), tx_hash),
		    completed_at = COALESCE(completed_at, ?)
		WHERE id = ? AND status IN (?)
	`, string(next), externalID, txHash, completedAt, id, allowedFrom)
	if err != nil {
		return "", err
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", err
	}

	var current model.BatchStatus
	err = r.db.QueryRowxContext(ctx, `SELECT status FROM settlement_batches WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("batch not found")
	}
	return current, err
}
