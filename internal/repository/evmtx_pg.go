package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SettleGuard/settleguard/internal/settlement"
	"github.com/jmoiron/sqlx"
)

// PostgresEvmTxRepo stores per-item EVM transfer state for the EVM adapter.
type PostgresEvmTxRepo struct {
	db *sqlx.DB
}

func NewPostgresEvmTxRepo(db *sqlx.DB) *PostgresEvmTxRepo {
	repo := &PostgresEvmTxRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresEvmTxRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_evm_txs (
			id BIGSERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL,
			wallet TEXT NOT NULL,
			amount_usdt TEXT NOT NULL,
			nonce BIGINT NOT NULL DEFAULT 0,
			tx_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (batch_id, wallet)
		)
	`)
	return err
}

func (r *PostgresEvmTxRepo) Get(ctx context.Context, batchID, wallet string) (*settlement.EvmTxRow, error) {
	var row settlement.EvmTxRow
	err := r.db.QueryRowxContext(ctx, `
		SELECT id, batch_id, wallet, amount_usdt, nonce, tx_hash, status, error_message, updated_at
		FROM settlement_evm_txs WHERE batch_id = $1 AND wallet = $2
	`, batchID, wallet).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *PostgresEvmTxRepo) ListByBatch(ctx context.Context, batchID string) ([]settlement.EvmTxRow, error) {
	var rows []settlement.EvmTxRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, batch_id, wallet, amount_usdt, nonce, tx_hash, status, error_message, updated_at
		FROM settlement_evm_txs WHERE batch_id = $1 ORDER BY wallet
	`, batchID)
	return rows, err
}

// Upsert records the latest send attempt for (batch_id, wallet).
func (r *PostgresEvmTxRepo) Upsert(ctx context.Context, row *settlement.EvmTxRow) error {
	row.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_evm_txs (batch_id, wallet, amount_usdt, nonce, tx_hash, status, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (batch_id, wallet) DO UPDATE SET
			amount_usdt = excluded.amount_usdt,
			nonce = excluded.nonce,
			tx_hash = excluded.tx_hash,
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, row.BatchID, row.Wallet, row.AmountStr, row.Nonce, row.TxHash, row.Status, row.Error, row.UpdatedAt)
	return err
}

func (r *PostgresEvmTxRepo) MarkStatus(ctx context.Context, id int64, status, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_evm_txs SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1
	`, id, status, errMsg, time.Now().UTC())
	return err
}
