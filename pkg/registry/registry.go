package registry

import (
	"fmt"
	"strings"
)

// ChainKind determines which verification backend and address rules apply
type ChainKind string

const (
	// KindEVM is an account-based EVM chain verified by receipt checking
	KindEVM ChainKind = "evm"
	// KindUTXO is a UTXO chain verified by confirmation tracking
	KindUTXO ChainKind = "utxo"
	// KindLedger is the settlement-asset ledger itself
	KindLedger ChainKind = "ledger"
)

// ChainInfo holds the configuration for a supported chain
type ChainInfo struct {
	Name                  string
	ChainID               int // numeric chain id, 0 for non-EVM chains
	Kind                  ChainKind
	Network               string // e.g. "mainnet", "testnet"
	RequiredConfirmations uint64
	RPCURL                string
}

// Registry maps chain identifiers to their configuration. It is an
// explicitly owned structure passed into the engine, never a package
// level singleton, so tests get fresh state.
type Registry struct {
	byName map[string]ChainInfo
	byID   map[int]ChainInfo
}

// New builds a registry from the given chains. Duplicate names or
// duplicate non-zero chain ids are rejected.
func New(chains []ChainInfo) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]ChainInfo),
		byID:   make(map[int]ChainInfo),
	}
	for _, c := range chains {
		name := strings.ToLower(c.Name)
		if name == "" {
			return nil, fmt.Errorf("chain with empty name")
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("duplicate chain name: %s", c.Name)
		}
		if c.ChainID != 0 {
			if _, exists := r.byID[c.ChainID]; exists {
				return nil, fmt.Errorf("duplicate chain id: %d", c.ChainID)
			}
			r.byID[c.ChainID] = c
		}
		r.byName[name] = c
	}
	return r, nil
}

// Lookup resolves a chain by composite (name, numeric id) key. A non-zero
// id takes precedence; when both are given they must agree.
func (r *Registry) Lookup(name string, chainID int) (ChainInfo, bool) {
	if chainID != 0 {
		info, ok := r.byID[chainID]
		if !ok {
			return ChainInfo{}, false
		}
		if name != "" && !strings.EqualFold(name, info.Name) {
			return ChainInfo{}, false
		}
		return info, true
	}
	info, ok := r.byName[strings.ToLower(name)]
	return info, ok
}

// Names returns the registered chain names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, info := range r.byName {
		names = append(names, info.Name)
	}
	return names
}
