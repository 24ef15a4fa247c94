package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-settler/pkg/engine"
	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "settler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState() *engine.State {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	verified := base.Add(10 * time.Minute)
	quote := models.Quote{
		Solver:       "solver-one",
		OutputAmount: 950_000,
		Fee:          40_000,
		Tip:          10_000,
		Expiry:       base.Add(time.Hour),
		SubmittedAt:  base.Add(time.Minute),
	}
	selected := quote

	return &engine.State{
		NextID: 3,
		Intents: []*models.Intent{
			{
				ID:             1,
				Owner:          "alice",
				Source:         models.ChainAsset{Chain: "ethereum", ChainID: 1, Asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
				Destination:    models.ChainAsset{Chain: "icp", Asset: "ckUSDC"},
				SourceAmount:   1_000_000,
				MinOutput:      900_000,
				Recipient:      "alice-wallet",
				Deadline:       base.Add(time.Hour),
				Status:         models.StatusDeposited,
				Quotes:         []models.Quote{quote},
				SelectedQuote:  &selected,
				EscrowBalance:  1_000_000,
				ProtocolFeeBps: 30,
				CreatedAt:      base,
				UpdatedAt:      verified,
				VerifiedAt:     &verified,
				DepositAddress: "deposit-ethereum-1",
				DepositProof:   "0xproof",
			},
			{
				ID:             2,
				Owner:          "bob",
				Source:         models.ChainAsset{Chain: "bitcoin", Asset: "btc", Network: "mainnet"},
				Destination:    models.ChainAsset{Chain: "icp", Asset: "ckBTC"},
				SourceAmount:   50_000,
				MinOutput:      49_000,
				Recipient:      "bob-wallet",
				Deadline:       base.Add(2 * time.Hour),
				Status:         models.StatusPendingQuote,
				ProtocolFeeBps: 30,
				CreatedAt:      base,
				UpdatedAt:      base,
			},
		},
		Escrow: []escrow.Account{
			{Owner: "alice", Asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Amount: 1_000_000},
		},
		CollectedFees: map[string]uint64{"ckUSDC": 2_850},
	}
}

func TestSaveAndLoadState(t *testing.T) {
	s := newTestStore(t)

	saved := sampleState()
	require.NoError(t, s.SaveState(saved))

	loaded, err := s.LoadState()
	require.NoError(t, err)

	assert.Equal(t, saved.NextID, loaded.NextID)
	assert.Equal(t, saved.CollectedFees, loaded.CollectedFees)
	assert.Equal(t, saved.Escrow, loaded.Escrow)
	require.Len(t, loaded.Intents, 2)
	assert.Equal(t, saved.Intents[0], loaded.Intents[0])
	assert.Equal(t, saved.Intents[1], loaded.Intents[1])
}

func TestSaveStateReplacesPrevious(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveState(sampleState()))

	smaller := sampleState()
	smaller.Intents = smaller.Intents[:1]
	smaller.Escrow = nil
	smaller.CollectedFees = map[string]uint64{}
	require.NoError(t, s.SaveState(smaller))

	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Len(t, loaded.Intents, 1)
	assert.Empty(t, loaded.Escrow)
	assert.Empty(t, loaded.CollectedFees)
}

func TestLoadStateFromEmptyDatabase(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.NextID)
	assert.Empty(t, loaded.Intents)
	assert.Empty(t, loaded.Escrow)
	assert.Empty(t, loaded.CollectedFees)
}

func TestRecordTransfer(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.RecordTransfer("xfer-1", "settlement-escrow", "solver-one", "ckUSDC", 997_150, now))

	// Duplicate references are rejected by the primary key
	err := s.RecordTransfer("xfer-1", "a", "b", "ckUSDC", 1, now)
	assert.Error(t, err)
}
