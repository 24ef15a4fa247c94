package engine

import (
	"fmt"

	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// CapacityConfig bounds intent creation to keep a single caller, or the
// deployment as a whole, from exhausting memory. A zero value disables
// the corresponding ceiling.
type CapacityConfig struct {
	MaxIntentsPerUser int // lifetime creations per owner
	MaxActivePerUser  int // concurrently non-terminal intents per owner
	MaxTotalIntents   int // lifetime creations overall
	MaxActiveIntents  int // concurrently non-terminal intents overall
}

// capacityGuard tracks creation counters. It is owned by the engine and
// only touched under the engine mutex.
type capacityGuard struct {
	cfg           CapacityConfig
	lifetime      map[string]int
	active        map[string]int
	totalLifetime int
	totalActive   int
}

func newCapacityGuard(cfg CapacityConfig) *capacityGuard {
	return &capacityGuard{
		cfg:      cfg,
		lifetime: make(map[string]int),
		active:   make(map[string]int),
	}
}

func (g *capacityGuard) checkCreate(owner string) error {
	if g.cfg.MaxTotalIntents > 0 && g.totalLifetime >= g.cfg.MaxTotalIntents {
		return fmt.Errorf("%w: global intent limit of %d reached", ErrRateLimitExceeded, g.cfg.MaxTotalIntents)
	}
	if g.cfg.MaxActiveIntents > 0 && g.totalActive >= g.cfg.MaxActiveIntents {
		return fmt.Errorf("%w: global active intent limit of %d reached", ErrRateLimitExceeded, g.cfg.MaxActiveIntents)
	}
	if g.cfg.MaxIntentsPerUser > 0 && g.lifetime[owner] >= g.cfg.MaxIntentsPerUser {
		return fmt.Errorf("%w: intent limit of %d reached for %s", ErrRateLimitExceeded, g.cfg.MaxIntentsPerUser, owner)
	}
	if g.cfg.MaxActivePerUser > 0 && g.active[owner] >= g.cfg.MaxActivePerUser {
		return fmt.Errorf("%w: active intent limit of %d reached for %s", ErrRateLimitExceeded, g.cfg.MaxActivePerUser, owner)
	}
	return nil
}

func (g *capacityGuard) recordCreate(owner string) {
	g.lifetime[owner]++
	g.active[owner]++
	g.totalLifetime++
	g.totalActive++
}

// recordTerminal frees active capacity when an intent reaches a
// terminal status. Lifetime counters never decrease.
func (g *capacityGuard) recordTerminal(owner string) {
	if g.active[owner] > 0 {
		g.active[owner]--
	}
	if g.active[owner] == 0 {
		delete(g.active, owner)
	}
	if g.totalActive > 0 {
		g.totalActive--
	}
}

// rebuild recomputes counters from a restored intent set. Lifetime
// counts only cover intents that survived retention sweeps, which is
// the conservative direction: restored owners regain headroom, never
// lose custody.
func (g *capacityGuard) rebuild(intents map[uint64]*models.Intent) {
	g.lifetime = make(map[string]int)
	g.active = make(map[string]int)
	g.totalLifetime = 0
	g.totalActive = 0
	for _, intent := range intents {
		g.lifetime[intent.Owner]++
		g.totalLifetime++
		if !intent.Status.IsTerminal() {
			g.active[intent.Owner]++
			g.totalActive++
		}
	}
}
