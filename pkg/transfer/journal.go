// Package transfer provides the settlement-asset transfer backends the
// engine pays out through.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
)

// Recorder persists journal rows; satisfied by store.Store
type Recorder interface {
	RecordTransfer(id, from, to, asset string, amount uint64, at time.Time) error
}

// Journal is a transfer ledger that issues settlement instructions as
// durable journal rows. The row must be written before the transfer is
// considered done: the journal is what reconciliation against the
// custody wallet runs on, so a transfer that cannot be journaled fails.
type Journal struct {
	recorder Recorder
	logger   logger.Logger
}

// NewJournal creates a journaling transfer ledger
func NewJournal(recorder Recorder, log logger.Logger) (*Journal, error) {
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Journal{recorder: recorder, logger: log}, nil
}

// Transfer journals a movement of amount between accounts and returns
// the journal reference.
func (j *Journal) Transfer(_ context.Context, from, to, asset string, amount uint64) (string, error) {
	if amount == 0 {
		return "", fmt.Errorf("cannot transfer zero amount from %s to %s", from, to)
	}
	if from == "" || to == "" {
		return "", fmt.Errorf("transfer requires both accounts")
	}

	ref := uuid.NewString()
	if err := j.recorder.RecordTransfer(ref, from, to, asset, amount, time.Now()); err != nil {
		return "", err
	}
	j.logger.Debug("Journaled transfer %s: %d %s from %s to %s", ref, amount, asset, from, to)
	return ref, nil
}
