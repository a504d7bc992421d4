package settlement

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nonceManager hands out transaction nonces optimistically: the first nonce
// per address is fetched from the chain (pending, to account for the
// mempool), later ones are incremented locally after each successful send.
type nonceManager struct {
	client *ethclient.Client

	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func newNonceManager(client *ethclient.Client) *nonceManager {
	return &nonceManager{
		client: client,
		nonces: make(map[common.Address]uint64),
	}
}

func (m *nonceManager) next(ctx context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nonce, ok := m.nonces[addr]; ok {
		return nonce, nil
	}
	fetched, err := m.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, err
	}
	m.nonces[addr] = fetched
	return fetched, nil
}

// bump advances the local nonce. Call after a successful broadcast.
func (m *nonceManager) bump(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nonces[addr]; ok {
		m.nonces[addr]++
	}
}

// reset drops the cached nonce so the next send re-syncs from the chain.
// Call on "nonce too low" style failures.
func (m *nonceManager) reset(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nonces, addr)
}
