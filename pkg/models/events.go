package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event emitted by the settlement engine
type EventType string

const (
	EventIntentCreated   EventType = "intent_created"
	EventIntentQuoted    EventType = "intent_quoted"
	EventIntentConfirmed EventType = "intent_confirmed"
	EventIntentDeposited EventType = "intent_deposited"
	EventIntentFulfilled EventType = "intent_fulfilled"
	EventIntentCancelled EventType = "intent_cancelled"
	EventIntentExpired   EventType = "intent_expired"
	EventEscrowLocked    EventType = "escrow_locked"
	EventEscrowReleased  EventType = "escrow_released"
	EventFeeCollected    EventType = "fee_collected"
)

// Event is a fire-and-forget notification for external indexers. Events
// are advisory: dropping one never affects custody state.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IntentID  uint64    `json:"intent_id"`
	Owner     string    `json:"owner,omitempty"`
	Asset     string    `json:"asset,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and the given timestamp
func NewEvent(typ EventType, intentID uint64, ts time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		IntentID:  intentID,
		Timestamp: ts,
	}
}
