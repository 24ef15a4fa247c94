package escrow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAndRelease(t *testing.T) {
	l := NewLedger()

	require.NoError(t, l.Lock("alice", "USDC", 500_000))
	require.NoError(t, l.Lock("bob", "USDC", 250_000))
	require.NoError(t, l.Lock("alice", "BTC", 10_000))

	assert.Equal(t, uint64(500_000), l.Balance("alice", "USDC"))
	assert.Equal(t, uint64(250_000), l.Balance("bob", "USDC"))
	assert.Equal(t, uint64(750_000), l.TotalLocked("USDC"))
	assert.Equal(t, uint64(10_000), l.TotalLocked("BTC"))

	require.NoError(t, l.Release("alice", "USDC", 200_000))
	assert.Equal(t, uint64(300_000), l.Balance("alice", "USDC"))
	assert.Equal(t, uint64(550_000), l.TotalLocked("USDC"))

	require.NoError(t, l.VerifyInvariants())
}

func TestLockRejectsZeroAmount(t *testing.T) {
	l := NewLedger()
	assert.Error(t, l.Lock("alice", "USDC", 0))
	assert.Equal(t, uint64(0), l.TotalLocked("USDC"))
}

func TestLockOverflowLeavesStateUntouched(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Lock("alice", "USDC", math.MaxUint64))

	err := l.Lock("alice", "USDC", 1)
	assert.Error(t, err)

	// Totals for a second owner must also fail on the asset total
	err = l.Lock("bob", "USDC", 1)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), l.Balance("bob", "USDC"))
	assert.Equal(t, uint64(math.MaxUint64), l.TotalLocked("USDC"))
	require.NoError(t, l.VerifyInvariants())
}

func TestReleaseInsufficientBalance(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Lock("alice", "USDC", 100))

	err := l.Release("alice", "USDC", 101)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(100), l.Balance("alice", "USDC"))

	err = l.Release("bob", "USDC", 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestZeroReleaseIsNoop(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Release("alice", "USDC", 0))
	require.NoError(t, l.Lock("alice", "USDC", 100))
	require.NoError(t, l.Release("alice", "USDC", 0))
	assert.Equal(t, uint64(100), l.Balance("alice", "USDC"))
}

func TestReleaseToZeroRemovesRow(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Lock("alice", "USDC", 100))
	require.NoError(t, l.Release("alice", "USDC", 100))

	assert.Equal(t, uint64(0), l.Balance("alice", "USDC"))
	assert.Equal(t, uint64(0), l.TotalLocked("USDC"))
	assert.Empty(t, l.Snapshot(), "zero rows must not be retained")
	require.NoError(t, l.VerifyInvariants())
}

// The global invariant must hold after every operation of an arbitrary
// lock/release sequence, and across a snapshot/restore cycle.
func TestInvariantUnderRandomSequence(t *testing.T) {
	l := NewLedger()
	rng := rand.New(rand.NewSource(42))
	owners := []string{"alice", "bob", "carol"}
	assets := []string{"USDC", "USDT", "BTC"}

	for i := 0; i < 2_000; i++ {
		owner := owners[rng.Intn(len(owners))]
		asset := assets[rng.Intn(len(assets))]
		amount := uint64(rng.Intn(10_000))

		if rng.Intn(2) == 0 {
			if amount > 0 {
				require.NoError(t, l.Lock(owner, asset, amount))
			}
		} else {
			// May legitimately fail on insufficient balance; state must
			// still be consistent either way.
			_ = l.Release(owner, asset, amount)
		}

		require.NoError(t, l.VerifyInvariants(), "invariant broken at step %d", i)
	}

	// Simulated persist/restore cycle
	snapshot := l.Snapshot()
	restored := NewLedger()
	require.NoError(t, restored.Restore(snapshot))

	for _, asset := range assets {
		assert.Equal(t, l.TotalLocked(asset), restored.TotalLocked(asset))
	}
	for _, owner := range owners {
		for _, asset := range assets {
			assert.Equal(t, l.Balance(owner, asset), restored.Balance(owner, asset))
		}
	}
}

func TestRestoreRejectsDuplicateRows(t *testing.T) {
	l := NewLedger()
	err := l.Restore([]Account{
		{Owner: "alice", Asset: "USDC", Amount: 1},
		{Owner: "alice", Asset: "USDC", Amount: 2},
	})
	assert.Error(t, err)
}

func TestRestoreSkipsZeroRows(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Restore([]Account{
		{Owner: "alice", Asset: "USDC", Amount: 0},
		{Owner: "bob", Asset: "USDC", Amount: 5},
	}))
	assert.Equal(t, uint64(0), l.Balance("alice", "USDC"))
	assert.Equal(t, uint64(5), l.TotalLocked("USDC"))
	assert.Len(t, l.Snapshot(), 1)
}
