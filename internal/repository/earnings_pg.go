package repository

import (
	"context"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresEarningsRepo reads the epoch earnings ledger. This subsystem only
// queries unpaid rows; marking rows paid stays with the settlement caller.
type PostgresEarningsRepo struct {
	db *sqlx.DB
}

func NewPostgresEarningsRepo(db *sqlx.DB) *PostgresEarningsRepo {
	return &PostgresEarningsRepo{db: db}
}

// UnpaidByEpoch returns unpaid earnings for an epoch grouped by wallet,
// ordered for deterministic batch construction.
func (r *PostgresEarningsRepo) UnpaidByEpoch(ctx context.Context, epochID int64) ([]model.BatchItem, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT wallet_or_node_id, SUM(amount_usdt)
		FROM epoch_earnings
		WHERE epoch_id = $1 AND paid = false
		GROUP BY wallet_or_node_id
		HAVING SUM(amount_usdt) > 0
		ORDER BY wallet_or_node_id
	`, epochID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.BatchItem
	for rows.Next() {
		var it model.BatchItem
		if err := rows.Scan(&it.Wallet, &it.AmountUSDT); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
