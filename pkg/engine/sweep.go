package engine

import (
	"context"
	"sort"
	"time"

	"github.com/speedrun-hq/speedrun-settler/pkg/metrics"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// ExpireDue moves every non-terminal intent past its deadline to
// Expired, refunding escrow where present. At most limit intents are
// processed per call (0 means no limit); an intent whose refund fails
// is left untouched for the next sweep. Returns the number expired.
func (e *Engine) ExpireDue(ctx context.Context, limit int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	due := make([]uint64, 0)
	for id, intent := range e.intents {
		if !intent.Status.IsTerminal() && !now.Before(intent.Deadline) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	expired := 0
	for _, id := range due {
		if limit > 0 && expired >= limit {
			break
		}
		intent := e.intents[id]
		if err := e.terminateLocked(ctx, intent, models.StatusExpired); err != nil {
			e.logger.Notice("Expiry of intent %d deferred: %v", id, err)
			continue
		}
		metrics.IntentsExpiredBySweep.Inc()
		expired++
	}
	return expired
}

// SweepTerminal removes terminal intents whose last update is older
// than the retention window, bounding memory over the deployment's
// lifetime. At most limit records are removed per call (0 means no
// limit). Returns the number removed.
func (e *Engine) SweepTerminal(retention time.Duration, limit int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-retention)
	stale := make([]uint64, 0)
	for id, intent := range e.intents {
		if intent.Status.IsTerminal() && intent.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })

	removed := 0
	for _, id := range stale {
		if limit > 0 && removed >= limit {
			break
		}
		intent := e.intents[id]
		delete(e.intents, id)
		e.removeOwnerIndex(intent.Owner, id)
		metrics.IntentsSweptFromRetention.Inc()
		removed++
	}
	if removed > 0 {
		e.logger.Debug("Retention sweep removed %d terminal intents", removed)
	}
	return removed
}

func (e *Engine) removeOwnerIndex(owner string, id uint64) {
	ids := e.ownerIntents[owner]
	for i, v := range ids {
		if v == id {
			e.ownerIntents[owner] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(e.ownerIntents[owner]) == 0 {
		delete(e.ownerIntents, owner)
	}
}
