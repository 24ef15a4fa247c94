package engine

import (
	"fmt"
	"sort"

	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// State is the engine's persistable snapshot
type State struct {
	NextID        uint64            `json:"next_id"`
	Intents       []*models.Intent  `json:"intents"`
	Escrow        []escrow.Account  `json:"escrow"`
	CollectedFees map[string]uint64 `json:"collected_fees"`
}

// Snapshot captures the full engine state for persistence. Intent
// records are deep copies in id order.
func (e *Engine) Snapshot() *State {
	e.mu.Lock()
	defer e.mu.Unlock()

	intents := make([]*models.Intent, 0, len(e.intents))
	for _, intent := range e.intents {
		intents = append(intents, intent.Clone())
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].ID < intents[j].ID })

	fees := make(map[string]uint64, len(e.collectedFees))
	for asset, amount := range e.collectedFees {
		fees[asset] = amount
	}

	return &State{
		NextID:        e.nextID,
		Intents:       intents,
		Escrow:        e.ledger.Snapshot(),
		CollectedFees: fees,
	}
}

// Restore replaces the engine state with a snapshot. The escrow ledger
// invariant is re-verified during the load; a violated invariant aborts
// the restore before the intent set is swapped in.
func (e *Engine) Restore(s *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	intents := make(map[uint64]*models.Intent, len(s.Intents))
	ownerIntents := make(map[string][]uint64)
	maxID := uint64(0)
	for _, intent := range s.Intents {
		if intent == nil {
			continue
		}
		if _, exists := intents[intent.ID]; exists {
			return fmt.Errorf("duplicate intent id %d in snapshot", intent.ID)
		}
		cp := intent.Clone()
		intents[cp.ID] = cp
		ownerIntents[cp.Owner] = append(ownerIntents[cp.Owner], cp.ID)
		if cp.ID > maxID {
			maxID = cp.ID
		}
	}
	for _, ids := range ownerIntents {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	if err := e.ledger.Restore(s.Escrow); err != nil {
		return fmt.Errorf("escrow restore: %w", err)
	}

	e.intents = intents
	e.ownerIntents = ownerIntents
	e.nextID = s.NextID
	if e.nextID <= maxID {
		e.nextID = maxID + 1
	}
	if e.nextID == 0 {
		e.nextID = 1
	}

	e.collectedFees = make(map[string]uint64, len(s.CollectedFees))
	for asset, amount := range s.CollectedFees {
		e.collectedFees[asset] = amount
	}

	e.guard.rebuild(e.intents)

	e.logger.Info("Restored %d intents, %d escrow accounts", len(e.intents), len(s.Escrow))
	return nil
}
