// Package events delivers engine domain events to observers.
package events

import (
	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// LogSink writes every event to the structured log. It is the default
// sink for deployments without an external indexer.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a logging event sink
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &LogSink{logger: log}
}

// Emit implements the engine event sink
func (s *LogSink) Emit(ev models.Event) {
	s.logger.Debug("Event %s: intent %d owner %q asset %q amount %d ref %q",
		ev.Type, ev.IntentID, ev.Owner, ev.Asset, ev.Amount, ev.Reference)
}
