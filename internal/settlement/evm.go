package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/SettleGuard/settleguard/internal/config"
	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/pkg/apperrors"
	"github.com/SettleGuard/settleguard/internal/pkg/logger"
	"github.com/SettleGuard/settleguard/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	evmTxStatusPrepared  = "prepared"
	evmTxStatusSent      = "sent"
	evmTxStatusConfirmed = "confirmed"
	evmTxStatusFailed    = "failed"

	erc20TransferGas = 65000
	erc20GasLimit    = 90000
)

// erc20TransferSelector is keccak256("transfer(address,uint256)")[:4].
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// EvmTxRow tracks one on-chain transfer for a batch item. The unique key
// (batch_id, wallet) is what makes CreatePayoutBatch retries safe: rows in
// sent/confirmed state are skipped instead of re-sent.
type EvmTxRow struct {
	ID        int64     `db:"id"`
	BatchID   string    `db:"batch_id"`
	Wallet    string    `db:"wallet"`
	AmountStr string    `db:"amount_usdt"`
	Nonce     uint64    `db:"nonce"`
	TxHash    string    `db:"tx_hash"`
	Status    string    `db:"status"`
	Error     string    `db:"error_message"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EvmTxStore persists per-item transfer state; the backend-side dedup key
// for idempotent batch creation.
type EvmTxStore interface {
	Get(ctx context.Context, batchID, wallet string) (*EvmTxRow, error)
	ListByBatch(ctx context.Context, batchID string) ([]EvmTxRow, error)
	Upsert(ctx context.Context, row *EvmTxRow) error
	MarkStatus(ctx context.Context, id int64, status, errMsg string) error
}

// EvmAdapter pays out an ERC-20 token over JSON-RPC, one transfer per item.
// All RPC calls carry an explicit timeout; submission is throttled by a rate
// limiter so a large batch cannot flood the node.
type EvmAdapter struct {
	chainName     string
	client        *ethclient.Client
	chainID       *big.Int
	key           *ecdsa.PrivateKey
	from          common.Address
	tokenAddr     common.Address
	tokenDecimals int32
	confirmations uint64
	rpcTimeout    time.Duration
	maxItems      int
	maxTotalUSDT  float64

	txs     EvmTxStore
	nonces  *nonceManager
	limiter *rate.Limiter
}

func NewEvmAdapter(cfg config.EvmConfig, settle config.SettlementConfig, txs EvmTxStore) (*EvmAdapter, error) {
	if cfg.RPCURL == "" || cfg.PrivateKey == "" || cfg.TokenAddress == "" {
		return nil, fmt.Errorf("evm adapter misconfigured: rpc_url, private_key and token_address are required")
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to eth client: %w", err)
	}

	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}

	timeout := time.Duration(cfg.RPCTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	qps := cfg.SubmitQPS
	if qps <= 0 {
		qps = 2
	}
	burst := cfg.SubmitBurst
	if burst <= 0 {
		burst = 1
	}

	return &EvmAdapter{
		chainName:     cfg.ChainName,
		client:        client,
		chainID:       chainID,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		tokenAddr:     common.HexToAddress(cfg.TokenAddress),
		tokenDecimals: cfg.TokenDecimals,
		confirmations: cfg.Confirmations,
		rpcTimeout:    timeout,
		maxItems:      settle.MaxBatchItems,
		maxTotalUSDT:  settle.MaxBatchUSDT,
		txs:           txs,
		nonces:        newNonceManager(client),
		limiter:       rate.NewLimiter(rate.Limit(qps), burst),
	}, nil
}

func (a *EvmAdapter) Name() string {
	return "EVM:" + a.chainName
}

func (a *EvmAdapter) validateBatchItems(items []model.BatchItem) error {
	if err := validateItems(items); err != nil {
		return err
	}
	if a.maxItems > 0 && len(items) > a.maxItems {
		return apperrors.NewInvalidBatch(fmt.Sprintf("batch exceeds max items (%d)", a.maxItems))
	}
	var total float64
	for _, it := range items {
		if !common.IsHexAddress(it.Wallet) {
			return apperrors.NewInvalidBatch(fmt.Sprintf("invalid address: %s", it.Wallet))
		}
		total += it.AmountUSDT
	}
	if a.maxTotalUSDT > 0 && total > a.maxTotalUSDT {
		return apperrors.NewInvalidBatch(fmt.Sprintf("batch total %.2f exceeds cap %.2f", total, a.maxTotalUSDT))
	}
	return nil
}

func (a *EvmAdapter) EstimateFee(ctx context.Context, items []model.BatchItem) (FeeEstimate, error) {
	if err := a.validateBatchItems(items); err != nil {
		return FeeEstimate{}, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()
	gasPrice, err := a.client.SuggestGasPrice(rpcCtx)
	if err != nil {
		metrics.AdapterErrors.WithLabelValues(a.Name(), "estimate").Inc()
		return FeeEstimate{}, apperrors.NewAdapterUnavailable("gas price query failed", err)
	}

	totalGas := new(big.Int).SetInt64(int64(erc20TransferGas) * int64(len(items)))
	feeWei := new(big.Int).Mul(totalGas, gasPrice)
	feeNative := decimal.NewFromBigInt(feeWei, -18)

	return FeeEstimate{
		Fee:      feeNative.InexactFloat64(),
		Currency: "NATIVE",
		Meta: map[string]any{
			"gas_price":     gasPrice.String(),
			"estimated_gas": totalGas.String(),
			"chain":         a.chainName,
		},
	}, nil
}

// CreatePayoutBatch sends one ERC-20 transfer per item. Items that already
// have a sent or confirmed tx row are skipped, which is what makes retries
// of the same batch id safe. The batch stays PROCESSING until GetBatchStatus
// observes every transfer confirmed.
func (a *EvmAdapter) CreatePayoutBatch(ctx context.Context, batch *model.SettlementBatch) (BatchReceipt, error) {
	if batch == nil || batch.ID == "" {
		return BatchReceipt{}, apperrors.NewInvalidBatch("batch has no id")
	}
	if err := a.validateBatchItems(batch.Items); err != nil {
		return BatchReceipt{}, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	gasPrice, err := a.client.SuggestGasPrice(rpcCtx)
	cancel()
	if err != nil {
		metrics.AdapterErrors.WithLabelValues(a.Name(), "create").Inc()
		return BatchReceipt{}, apperrors.NewAdapterUnavailable("gas price query failed", err)
	}

	for _, item := range batch.Items {
		existing, err := a.txs.Get(ctx, batch.ID, item.Wallet)
		if err != nil {
			return BatchReceipt{}, err
		}
		if existing != nil && (existing.Status == evmTxStatusSent || existing.Status == evmTxStatusConfirmed) {
			continue
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return BatchReceipt{}, err
		}
		if err := a.sendTransfer(ctx, batch.ID, item, gasPrice); err != nil {
			// Recorded on the tx row; the batch-level status aggregation
			// will surface it. Keep going so one bad item does not block
			// the rest.
			logger.Error("evm transfer failed", "batch", batch.ID, "wallet", item.Wallet, "error", err)
		}
	}

	return BatchReceipt{
		ExternalID: fmt.Sprintf("EVM:%s:%s", a.chainName, batch.ID),
		Status:     model.BatchProcessing,
	}, nil
}

func (a *EvmAdapter) sendTransfer(ctx context.Context, batchID string, item model.BatchItem, gasPrice *big.Int) error {
	amountStr := decimal.NewFromFloat(item.AmountUSDT).String()
	row := &EvmTxRow{
		BatchID:   batchID,
		Wallet:    item.Wallet,
		AmountStr: amountStr,
		Status:    evmTxStatusPrepared,
	}

	rpcCtx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()

	nonce, err := a.nonces.next(rpcCtx, a.from)
	if err != nil {
		row.Status = evmTxStatusFailed
		row.Error = err.Error()
		_ = a.txs.Upsert(ctx, row)
		return err
	}
	row.Nonce = nonce

	amountUnits := decimal.NewFromFloat(item.AmountUSDT).Shift(a.tokenDecimals).BigInt()
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20TransferSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(item.Wallet).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amountUnits.Bytes(), 32)...)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.tokenAddr,
		Value:    big.NewInt(0),
		Gas:      erc20GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		row.Status = evmTxStatusFailed
		row.Error = err.Error()
		_ = a.txs.Upsert(ctx, row)
		return err
	}

	if err := a.client.SendTransaction(rpcCtx, signed); err != nil {
		a.nonces.reset(a.from)
		row.Status = evmTxStatusFailed
		row.Error = err.Error()
		_ = a.txs.Upsert(ctx, row)
		metrics.AdapterErrors.WithLabelValues(a.Name(), "send").Inc()
		return err
	}

	a.nonces.bump(a.from)
	row.Status = evmTxStatusSent
	row.TxHash = signed.Hash().Hex()
	return a.txs.Upsert(ctx, row)
}

// GetBatchStatus aggregates per-item tx rows, polling receipts for anything
// still in flight: any failed item fails the batch, all confirmed completes
// it, otherwise it stays PROCESSING.
func (a *EvmAdapter) GetBatchStatus(ctx context.Context, batchID string) (StatusInfo, error) {
	rows, err := a.txs.ListByBatch(ctx, batchID)
	if err != nil {
		return StatusInfo{}, err
	}
	if len(rows) == 0 {
		return StatusInfo{Status: model.BatchPending}, nil
	}

	var failed, confirmed int
	var firstHash string
	for i := range rows {
		row := &rows[i]
		if row.TxHash != "" && firstHash == "" {
			firstHash = row.TxHash
		}

		if row.Status == evmTxStatusSent {
			a.pollReceipt(ctx, row)
		}

		switch row.Status {
		case evmTxStatusFailed:
			failed++
		case evmTxStatusConfirmed:
			confirmed++
		}
	}

	info := StatusInfo{Status: model.BatchProcessing, TxHash: firstHash}
	switch {
	case failed > 0:
		info.Status = model.BatchFailed
	case confirmed == len(rows):
		info.Status = model.BatchCompleted
		now := time.Now().UTC()
		info.CompletedAt = &now
	}
	return info, nil
}

// pollReceipt checks one in-flight tx and records the terminal outcome.
// RPC errors are left alone: the item simply stays sent until a later poll.
func (a *EvmAdapter) pollReceipt(ctx context.Context, row *EvmTxRow) {
	rpcCtx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()

	receipt, err := a.client.TransactionReceipt(rpcCtx, common.HexToHash(row.TxHash))
	if err != nil || receipt == nil {
		return
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		row.Status = evmTxStatusFailed
		_ = a.txs.MarkStatus(ctx, row.ID, evmTxStatusFailed, "transaction reverted")
		return
	}

	if a.confirmations > 1 {
		head, err := a.client.BlockNumber(rpcCtx)
		if err != nil || head < receipt.BlockNumber.Uint64()+a.confirmations-1 {
			return
		}
	}

	row.Status = evmTxStatusConfirmed
	_ = a.txs.MarkStatus(ctx, row.ID, evmTxStatusConfirmed, "")
}

// CancelBatch refuses once anything has been broadcast; transfers on chain
// cannot be recalled.
func (a *EvmAdapter) CancelBatch(ctx context.Context, batchID string) error {
	rows, err := a.txs.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Status == evmTxStatusSent || row.Status == evmTxStatusConfirmed {
			return apperrors.New(apperrors.ErrNotCancelable,
				fmt.Sprintf("batch %s already broadcast", batchID), nil)
		}
	}
	return nil
}

func (a *EvmAdapter) HealthCheck(ctx context.Context) HealthReport {
	start := time.Now()
	rpcCtx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()

	if _, err := a.client.BlockNumber(rpcCtx); err != nil {
		return HealthReport{OK: false, LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
	}
	return HealthReport{OK: true, LatencyMs: time.Since(start).Milliseconds()}
}
