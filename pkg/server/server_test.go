package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-settler/pkg/engine"
	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
	"github.com/speedrun-hq/speedrun-settler/pkg/registry"
)

type fakeTransfers struct{}

func (fakeTransfers) Transfer(_ context.Context, _, _, _ string, _ uint64) (string, error) {
	return "xfer-1", nil
}

type fakeDeriver struct{}

func (fakeDeriver) DeriveAddress(_ context.Context, chain string, id uint64, _ string) (string, error) {
	return fmt.Sprintf("deposit-%s-%d", chain, id), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg, err := registry.New([]registry.ChainInfo{
		{Name: "ethereum", ChainID: 1, Kind: registry.KindEVM, RequiredConfirmations: 12},
		{Name: "icp", Kind: registry.KindLedger, RequiredConfirmations: 1},
	})
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{ProtocolFeeBps: 30}, engine.Deps{
		Registry:  reg,
		Ledger:    escrow.NewLedger(),
		Deriver:   fakeDeriver{},
		Transfers: fakeTransfers{},
	})
	require.NoError(t, err)
	return NewServer(eng, "0", nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func createIntentBody() map[string]any {
	return map[string]any{
		"owner": "alice",
		"source": map[string]any{
			"chain": "ethereum", "chain_id": 1,
			"asset": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		},
		"destination":   map[string]any{"chain": "icp", "asset": "ckUSDC"},
		"source_amount": 1_000_000,
		"min_output":    900_000,
		"recipient":     "alice-wallet",
		"deadline":      time.Now().Add(time.Hour).Format(time.RFC3339),
	}
}

func TestCreateAndGetIntent(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/intents", createIntentBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Intent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, "deposit-ethereum-1", created.DepositAddress)

	w = doJSON(t, s, http.MethodGet, "/api/v1/intents/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/intents/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/intents?owner=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Intents []models.Intent `json:"intents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Intents, 1)
}

func TestCreateIntentRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	body := createIntentBody()
	delete(body, "owner")
	w := doJSON(t, s, http.MethodPost, "/api/v1/intents", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = createIntentBody()
	body["deadline"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	w = doJSON(t, s, http.MethodPost, "/api/v1/intents", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = createIntentBody()
	body["source"] = map[string]any{"chain": "solana", "asset": "sol"}
	w = doJSON(t, s, http.MethodPost, "/api/v1/intents", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuoteConfirmFulfillFlow(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/intents", createIntentBody())
	require.Equal(t, http.StatusCreated, w.Code)

	quote := map[string]any{
		"solver": "solver-one", "output_amount": 950_000,
		"fee": 40_000, "tip": 10_000,
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/quotes", quote)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Wrong caller cannot confirm
	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/confirm",
		map[string]any{"caller": "mallory", "solver": "solver-one"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/confirm",
		map[string]any{"caller": "alice", "solver": "solver-one"})
	require.Equal(t, http.StatusOK, w.Code)

	// Fulfill before deposit conflicts with the lifecycle
	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/fulfill", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDepositRequiresProof(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/intents", createIntentBody())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/deposit",
		map[string]any{"caller": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelIntent(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/intents", createIntentBody())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/cancel",
		map[string]any{"caller": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	var intent models.Intent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.Equal(t, models.StatusCancelled, intent.Status)

	// Terminal intents reject a second cancel
	w = doJSON(t, s, http.MethodPost, "/api/v1/intents/1/cancel",
		map[string]any{"caller": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEscrowAndFeesEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/v1/escrow/alice/ckUSDC", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balance struct {
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.Equal(t, uint64(0), balance.Balance)

	w = doJSON(t, s, http.MethodGet, "/api/v1/fees", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
