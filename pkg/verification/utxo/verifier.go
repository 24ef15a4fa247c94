package utxo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/speedrun-hq/speedrun-settler/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
	"github.com/speedrun-hq/speedrun-settler/pkg/verification"
)

const (
	// maxBodyBytes bounds how much of an external payload is ever read
	maxBodyBytes = 1 << 20
	// maxTipDigits bounds the block height payload
	maxTipDigits = 20
)

// txStatus mirrors the esplora transaction status object
type txStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

// txOutput mirrors one esplora vout entry
type txOutput struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// txInfo mirrors the esplora transaction response
type txInfo struct {
	TxID   string     `json:"txid"`
	Status txStatus   `json:"status"`
	Vout   []txOutput `json:"vout"`
}

// Verifier checks UTXO-chain deposits against an esplora-style HTTP data
// source: the proof is a (txid, output index) pair, the check is that the
// referenced output pays the expected address at least the expected
// amount at sufficient confirmation depth.
type Verifier struct {
	chain      string
	baseURL    string
	params     *chaincfg.Params
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     logger.Logger
}

// NewVerifier creates a UTXO verification backend. network selects the
// address encoding parameters: "mainnet", "testnet" or "regtest".
func NewVerifier(chain, baseURL, network string, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) (*Verifier, error) {
	params, err := netParams(network)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Verifier{
		chain:      chain,
		baseURL:    strings.TrimRight(baseURL, "/"),
		params:     params,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker:    breaker,
		logger:     log,
	}, nil
}

var _ verification.Verifier = (*Verifier)(nil)

func netParams(network string) (*chaincfg.Params, error) {
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

// Verify implements the verification contract for UTXO chains
func (v *Verifier) Verify(ctx context.Context, req verification.Request) verification.Result {
	// A txid that does not parse can never become valid
	if _, err := chainhash.NewHashFromStr(req.TxHash); err != nil {
		return verification.Failed(fmt.Sprintf("malformed txid %q: %v", req.TxHash, err))
	}
	expectedAddr, err := btcutil.DecodeAddress(req.Recipient, v.params)
	if err != nil {
		return verification.Failed(fmt.Sprintf("malformed recipient address %q: %v", req.Recipient, err))
	}

	if v.breaker != nil && v.breaker.IsOpen() {
		v.logger.DebugWithChain(v.chain, "Circuit open, deferring verification of %s", req.TxHash)
		return verification.Pending(0, req.RequiredConfirmations)
	}

	info, result, ok := v.fetchTx(ctx, req)
	if !ok {
		return result
	}

	if int(req.OutputIndex) >= len(info.Vout) {
		return verification.Failed(fmt.Sprintf("output index %d out of range: transaction has %d outputs",
			req.OutputIndex, len(info.Vout)))
	}
	out := info.Vout[req.OutputIndex]

	if out.Value < 0 || out.Value > btcutil.MaxSatoshi {
		return verification.Failed(fmt.Sprintf("implausible output value: %d", out.Value))
	}
	if out.ScriptPubKeyAddress != expectedAddr.EncodeAddress() {
		return verification.Failed("unexpected recipient")
	}
	amount := uint64(out.Value)
	if amount < req.MinAmount {
		return verification.Failed(fmt.Sprintf("insufficient deposit: got %d, need %d", amount, req.MinAmount))
	}

	if !info.Status.Confirmed || info.Status.BlockHeight <= 0 {
		return verification.Pending(0, req.RequiredConfirmations)
	}

	tip, ok := v.fetchTipHeight(ctx)
	if !ok {
		return verification.Pending(0, req.RequiredConfirmations)
	}
	confirmations := verification.Confirmations(tip, uint64(info.Status.BlockHeight))
	if confirmations < req.RequiredConfirmations {
		return verification.Pending(confirmations, req.RequiredConfirmations)
	}

	reference := fmt.Sprintf("%s:%d", req.TxHash, req.OutputIndex)
	return verification.Success(amount, reference, confirmations)
}

// fetchTx loads the transaction from the data source. ok is false when
// verification should stop with the returned result; every transient
// condition maps to Pending.
func (v *Verifier) fetchTx(ctx context.Context, req verification.Request) (txInfo, verification.Result, bool) {
	pending := verification.Pending(0, req.RequiredConfirmations)

	body, status, err := v.get(ctx, v.baseURL+"/tx/"+req.TxHash)
	if err != nil {
		v.logger.DebugWithChain(v.chain, "Transaction fetch for %s pending: %v", req.TxHash, err)
		return txInfo{}, pending, false
	}

	switch {
	case status == http.StatusOK:
		// fall through to decode
	case status == http.StatusNotFound:
		// Not yet visible to this source; it may still propagate
		return txInfo{}, pending, false
	case status == http.StatusTooManyRequests:
		v.logger.NoticeWithChain(v.chain, "Rate limited by data source, deferring %s", req.TxHash)
		return txInfo{}, pending, false
	default:
		if v.breaker != nil && status >= 500 {
			v.breaker.RecordFailure()
		}
		return txInfo{}, pending, false
	}

	var info txInfo
	if err := json.Unmarshal(body, &info); err != nil {
		// Unparseable but plausibly transient (truncated proxy response,
		// maintenance page): retry rather than reject the deposit.
		v.logger.NoticeWithChain(v.chain, "Unparseable payload for %s: %v", req.TxHash, err)
		return txInfo{}, pending, false
	}
	if v.breaker != nil {
		v.breaker.RecordSuccess()
	}
	return info, verification.Result{}, true
}

// fetchTipHeight loads the current chain tip height
func (v *Verifier) fetchTipHeight(ctx context.Context) (uint64, bool) {
	body, status, err := v.get(ctx, v.baseURL+"/blocks/tip/height")
	if err != nil || status != http.StatusOK {
		if v.breaker != nil && status >= 500 {
			v.breaker.RecordFailure()
		}
		return 0, false
	}

	text := strings.TrimSpace(string(body))
	if len(text) == 0 || len(text) > maxTipDigits {
		return 0, false
	}
	tip, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return tip, true
}

func (v *Verifier) get(ctx context.Context, url string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		if v.breaker != nil {
			v.breaker.RecordFailure()
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
