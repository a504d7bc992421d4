package model

import "time"

// GenesisHash seeds the ledger hash chain. The first chain link's prev_hash
// must equal this value.
const GenesisHash = "GENESIS"

// RevenueEvent 是外部记账方写入的原始营收事实
// CreatedAt is unix SECONDS. Immutable once written.
type RevenueEvent struct {
	ID         int64   `json:"id" db:"id"`
	AmountUSDT float64 `json:"amount_usdt" db:"amount_usdt"`
	CreatedAt  int64   `json:"created_at" db:"created_at"`
}

// LedgerEntry is one posting affecting an account's balance.
// CreatedAt is unix MILLISECONDS — a different time domain than RevenueEvent.
// Immutable once written; posting happens outside this subsystem.
type LedgerEntry struct {
	ID         int64   `json:"id" db:"id"`
	EventType  string  `json:"event_type" db:"event_type"` // revenue | payout | adjustment | ...
	AmountUSDT float64 `json:"amount_usdt" db:"amount_usdt"`
	AccountKey string  `json:"account_key" db:"account_key"`
	CreatedAt  int64   `json:"created_at" db:"created_at"`
}

// LedgerChainLink binds a ledger entry to its predecessor via hash.
// ThisHash is a sha256 digest over (prev_hash, entry id, amount, account_key,
// created_at); prev_hash of link n must equal this_hash of link n-1.
type LedgerChainLink struct {
	LedgerEntryID int64  `json:"ledger_entry_id" db:"ledger_entry_id"`
	PrevHash      string `json:"prev_hash" db:"prev_hash"`
	ThisHash      string `json:"this_hash" db:"this_hash"`
	SequenceNo    int64  `json:"sequence_no" db:"sequence_no"`
}

// AccountBalance 每个账户的当前余额快照
type AccountBalance struct {
	AccountKey  string  `json:"account_key" db:"account_key"`
	BalanceUSDT float64 `json:"balance_usdt" db:"balance_usdt"`
}

// IntegrityRun is the append-only record of one daily check. Success and
// failure are both recorded; the audit trail must never have gaps.
type IntegrityRun struct {
	ID        string    `json:"id" db:"id"`
	Day       string    `json:"day_yyyymmdd" db:"day_yyyymmdd"`
	OK        bool      `json:"ok" db:"ok"`
	Findings  []string  `json:"findings" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChainCheckpoint is the watermark up to which the hash chain has already
// been verified. Single row, single-writer.
type ChainCheckpoint struct {
	LastSequenceNo int64     `json:"last_sequence_no" db:"last_sequence_no"`
	LastHash       string    `json:"last_hash" db:"last_hash"`
	LastEntryID    int64     `json:"last_entry_id" db:"last_entry_id"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// EpochEarning 某个结算周期内某个收款方的未支付收益
type EpochEarning struct {
	EpochID    int64   `json:"epoch_id" db:"epoch_id"`
	Role       string  `json:"role" db:"role"`
	Wallet     string  `json:"wallet" db:"wallet_or_node_id"`
	AmountUSDT float64 `json:"amount_usdt" db:"amount_usdt"`
	Paid       bool    `json:"paid" db:"paid"`
}
