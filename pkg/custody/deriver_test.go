package custody

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddress(t *testing.T) {
	d, err := NewDeriver(map[string]string{
		"Ethereum": "0x8Ba1f109551bD432803012645Ac136ddd64DBA72",
		"bitcoin":  "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
	})
	require.NoError(t, err)
	ctx := context.Background()

	addr, err := d.DeriveAddress(ctx, "ethereum", 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, "0x8Ba1f109551bD432803012645Ac136ddd64DBA72", addr)

	// Lookup is case insensitive
	addr, err = d.DeriveAddress(ctx, "BITCOIN", 2, "bob")
	require.NoError(t, err)
	assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", addr)

	_, err = d.DeriveAddress(ctx, "solana", 3, "carol")
	assert.Error(t, err)
}

func TestNewDeriverRejectsEmptyAddress(t *testing.T) {
	_, err := NewDeriver(map[string]string{"ethereum": ""})
	assert.Error(t, err)
}
