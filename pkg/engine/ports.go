package engine

import (
	"context"

	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// EscrowAccount is the ledger account funds are parked on between a
// verified deposit and settlement.
const EscrowAccount = "settlement-escrow"

// AddressDeriver produces the per-intent deposit address on the source
// chain. Implementations wrap whatever key-derivation service the
// deployment uses.
type AddressDeriver interface {
	DeriveAddress(ctx context.Context, chain string, intentID uint64, owner string) (string, error)
}

// TransferLedger moves settlement-asset funds between accounts: escrow
// to solver on fulfillment, escrow back to owner on refund. It returns
// an opaque transfer reference for audit.
type TransferLedger interface {
	Transfer(ctx context.Context, from, to, asset string, amount uint64) (string, error)
}

// EventSink receives domain events. Delivery is best effort; custody
// state never depends on an event being observed.
type EventSink interface {
	Emit(event models.Event)
}
