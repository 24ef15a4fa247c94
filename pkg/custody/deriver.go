// Package custody exposes the deposit addresses of the custody wallet.
package custody

import (
	"context"
	"fmt"
	"strings"
)

// Deriver hands out the configured deposit address for each source
// chain. The custody wallet uses one address per chain; attribution is
// by the transaction proof the owner submits, not by address, so the
// address is stable across intents.
type Deriver struct {
	addresses map[string]string
}

// NewDeriver builds a deriver from a chain name to deposit address map
func NewDeriver(addresses map[string]string) (*Deriver, error) {
	normalized := make(map[string]string, len(addresses))
	for chain, addr := range addresses {
		if addr == "" {
			return nil, fmt.Errorf("empty deposit address for chain %s", chain)
		}
		normalized[strings.ToLower(chain)] = addr
	}
	return &Deriver{addresses: normalized}, nil
}

// DeriveAddress returns the deposit address for the chain
func (d *Deriver) DeriveAddress(_ context.Context, chain string, _ uint64, _ string) (string, error) {
	addr, ok := d.addresses[strings.ToLower(chain)]
	if !ok {
		return "", fmt.Errorf("no deposit address configured for chain %s", chain)
	}
	return addr, nil
}
