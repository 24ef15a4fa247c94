package engine

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-settler/pkg/registry"
)

const (
	maxIdentityLen  = 128
	maxAddressLen   = 256
	maxQuotesPerInt = 64
)

func validateIdentity(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if len(value) > maxIdentityLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidInput, field, maxIdentityLen)
	}
	return nil
}

// validateAddress checks an address against the rules of the chain kind
// it will be used on. Ledger principals are opaque strings here; their
// shape is enforced by the transfer ledger itself.
func validateAddress(info registry.ChainInfo, address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required for chain %s", ErrInvalidInput, info.Name)
	}
	if len(address) > maxAddressLen {
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidInput, maxAddressLen)
	}

	switch info.Kind {
	case registry.KindEVM:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%w: %q is not a valid EVM address", ErrInvalidInput, address)
		}
	case registry.KindUTXO:
		params, err := utxoParams(info.Network)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrChainNotSupported, err)
		}
		if _, err := btcutil.DecodeAddress(address, params); err != nil {
			return fmt.Errorf("%w: %q is not a valid %s address: %v", ErrInvalidInput, address, info.Name, err)
		}
	}
	return nil
}

func utxoParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}
