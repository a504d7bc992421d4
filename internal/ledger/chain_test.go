package ledger

import (
	"context"
	"testing"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChainStore struct {
	rows       []ChainRow
	orphans    []int64
	cp         model.ChainCheckpoint
	hasCP      bool
	savedCount int
	lastAfter  int64
}

func newFakeChainStore() *fakeChainStore {
	return &fakeChainStore{}
}

func (s *fakeChainStore) LinksAfter(_ context.Context, afterSeq int64, limit int) ([]ChainRow, error) {
	s.lastAfter = afterSeq
	var out []ChainRow
	for _, r := range s.rows {
		if r.Link.SequenceNo > afterSeq {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeChainStore) OrphanEntryIDs(_ context.Context, afterEntryID int64) ([]int64, error) {
	var out []int64
	for _, id := range s.orphans {
		if id > afterEntryID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeChainStore) GetCheckpoint(_ context.Context) (model.ChainCheckpoint, error) {
	if !s.hasCP {
		return model.ChainCheckpoint{LastSequenceNo: -1, LastHash: model.GenesisHash}, nil
	}
	return s.cp, nil
}

func (s *fakeChainStore) SaveCheckpoint(_ context.Context, cp model.ChainCheckpoint) error {
	s.cp = cp
	s.hasCP = true
	s.savedCount++
	return nil
}

// appendLinked extends the store's chain with correctly computed links.
func (s *fakeChainStore) appendLinked(amounts ...float64) {
	prevHash := model.GenesisHash
	seq := int64(0)
	id := int64(1)
	if n := len(s.rows); n > 0 {
		prevHash = s.rows[n-1].Link.ThisHash
		seq = s.rows[n-1].Link.SequenceNo + 1
		id = s.rows[n-1].Entry.ID + 1
	}
	for _, amount := range amounts {
		entry := model.LedgerEntry{
			ID:         id,
			EventType:  "revenue",
			AmountUSDT: amount,
			AccountKey: "treasury_main",
			CreatedAt:  1768435200000 + id,
		}
		hash := ComputeLinkHash(prevHash, entry)
		s.rows = append(s.rows, ChainRow{
			Link: model.LedgerChainLink{
				LedgerEntryID: entry.ID,
				PrevHash:      prevHash,
				ThisHash:      hash,
				SequenceNo:    seq,
			},
			Entry: entry,
		})
		prevHash = hash
		seq++
		id++
	}
}

func TestVerifyChainEmptyLedger(t *testing.T) {
	store := newFakeChainStore()
	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Orphans)
	assert.Empty(t, report.BrokenLinks)
	assert.Equal(t, 0, store.savedCount, "empty chain must not move the watermark")
}

func TestVerifyChainCleanAdvancesCheckpoint(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20, 30, 40)

	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, int64(3), store.cp.LastSequenceNo)
	assert.Equal(t, store.rows[3].Link.ThisHash, store.cp.LastHash)
	assert.Equal(t, int64(4), store.cp.LastEntryID)
}

func TestVerifyChainTamperedAmountIsBroken(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20, 30)
	// Mutate the recorded amount of the middle entry without relinking.
	store.rows[1].Entry.AmountUSDT = 999

	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{1}, report.BrokenLinks)
	assert.Equal(t, 0, store.savedCount, "broken chain must not advance the watermark")
}

func TestVerifyChainBrokenPrevHash(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20, 30)
	store.rows[2].Link.PrevHash = "deadbeef"

	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.Contains(t, report.BrokenLinks, int64(2))
}

func TestVerifyChainGenesisMismatch(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10)
	store.rows[0].Link.PrevHash = "not-genesis"

	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{0}, report.BrokenLinks)
}

func TestVerifyChainSequenceGap(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20, 30)
	// Drop the middle link entirely.
	store.rows = append(store.rows[:1], store.rows[2:]...)

	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.Contains(t, report.BrokenLinks, int64(2))
}

func TestVerifyChainReportsOrphans(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20)
	store.orphans = []int64{7, 9}

	report, err := NewVerifier(store, false).VerifyChain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, report.Orphans)
	assert.Equal(t, 0, store.savedCount)
}

func TestVerifyChainIncrementalDelta(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20, 30)

	v := NewVerifier(store, false)
	_, err := v.VerifyChain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.savedCount)

	// New entries arrive; the second run must start from the watermark, not
	// re-scan the whole chain.
	store.appendLinked(40, 50)
	report, err := v.VerifyChain(context.Background())

	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, int64(2), store.lastAfter, "scan should resume after the checkpoint")
	assert.Equal(t, int64(4), store.cp.LastSequenceNo)
}

func TestVerifyChainFullRescanIgnoresCheckpoint(t *testing.T) {
	store := newFakeChainStore()
	store.appendLinked(10, 20, 30)
	store.cp = model.ChainCheckpoint{LastSequenceNo: 2, LastHash: store.rows[2].Link.ThisHash, LastEntryID: 3}
	store.hasCP = true

	// Corruption behind the watermark is invisible to the incremental scan
	// but must be caught by a deep audit.
	store.rows[0].Entry.AmountUSDT = 12345

	incremental, err := NewVerifier(store, false).VerifyChain(context.Background())
	require.NoError(t, err)
	assert.True(t, incremental.Clean())

	full, err := NewVerifier(store, true).VerifyChain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, full.BrokenLinks)
}
