package evm

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/speedrun-hq/speedrun-settler/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
	"github.com/speedrun-hq/speedrun-settler/pkg/verification"
)

// transferTopic is the ERC20 Transfer(address,address,uint256) event signature
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// maxAmount is the ledger ceiling; deposits above it cannot be accounted
var maxAmount = new(big.Int).SetUint64(math.MaxUint64)

// Client is the subset of ethclient.Client the verifier needs. Narrowed
// to an interface so tests can inject fakes.
type Client interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Verifier checks EVM deposits by receipt and value inspection. Token
// deposits are matched against ERC20 Transfer logs, native deposits
// against the transaction value. Any transient condition yields Pending.
type Verifier struct {
	chain   string
	client  Client
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

// NewVerifier creates an EVM verification backend
func NewVerifier(chain string, client Client, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Verifier {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Verifier{chain: chain, client: client, breaker: breaker, logger: log}
}

var _ verification.Verifier = (*Verifier)(nil)

// Verify implements the verification contract for EVM chains
func (v *Verifier) Verify(ctx context.Context, req verification.Request) verification.Result {
	if !isTxHash(req.TxHash) {
		return verification.Failed(fmt.Sprintf("malformed transaction hash: %q", req.TxHash))
	}
	if !common.IsHexAddress(req.Recipient) {
		return verification.Failed(fmt.Sprintf("malformed recipient address: %q", req.Recipient))
	}
	if req.Asset != "" && !common.IsHexAddress(req.Asset) {
		return verification.Failed(fmt.Sprintf("malformed token address: %q", req.Asset))
	}

	if v.breaker != nil && v.breaker.IsOpen() {
		v.logger.DebugWithChain(v.chain, "Circuit open, deferring verification of %s", req.TxHash)
		return verification.Pending(0, req.RequiredConfirmations)
	}

	txHash := common.HexToHash(req.TxHash)

	receipt, err := v.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		// Receipt not visible yet, rate limits, node errors: all of these
		// are ambiguous, so the caller retries.
		v.recordSourceError(err)
		v.logger.DebugWithChain(v.chain, "Receipt lookup for %s pending: %v", req.TxHash, err)
		return verification.Pending(0, req.RequiredConfirmations)
	}
	if v.breaker != nil {
		v.breaker.RecordSuccess()
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return verification.Failed("transaction reverted")
	}
	if receipt.BlockNumber == nil || receipt.BlockNumber.Sign() < 0 {
		return verification.Pending(0, req.RequiredConfirmations)
	}

	var amount uint64
	var failReason string
	if req.Asset != "" {
		amount, failReason = v.tokenAmount(receipt, req)
	} else {
		amount, failReason = v.nativeAmount(ctx, txHash, req)
		if failReason == "pending" {
			return verification.Pending(0, req.RequiredConfirmations)
		}
	}
	if failReason != "" {
		return verification.Failed(failReason)
	}
	if amount < req.MinAmount {
		return verification.Failed(fmt.Sprintf("insufficient deposit: got %d, need %d", amount, req.MinAmount))
	}

	current, err := v.client.BlockNumber(ctx)
	if err != nil {
		v.recordSourceError(err)
		return verification.Pending(0, req.RequiredConfirmations)
	}
	if !receipt.BlockNumber.IsUint64() {
		return verification.Failed("implausible receipt block number")
	}
	confirmations := verification.Confirmations(current, receipt.BlockNumber.Uint64())
	if confirmations < req.RequiredConfirmations {
		return verification.Pending(confirmations, req.RequiredConfirmations)
	}

	return verification.Success(amount, req.TxHash, confirmations)
}

// tokenAmount sums the ERC20 Transfer amounts to the expected recipient
// from the expected token contract. Returns a non-empty reason when the
// receipt conclusively does not carry a matching deposit.
func (v *Verifier) tokenAmount(receipt *types.Receipt, req verification.Request) (uint64, string) {
	token := common.HexToAddress(req.Asset)
	recipient := common.HexToAddress(req.Recipient)

	total := new(big.Int)
	matched := false
	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(lg.Topics[2].Bytes()) != recipient {
			continue
		}
		// ERC20 Transfer carries exactly one uint256 in the data
		if len(lg.Data) != 32 {
			return 0, "malformed transfer log data"
		}
		matched = true
		total.Add(total, new(big.Int).SetBytes(lg.Data))
	}

	if !matched {
		return 0, "no transfer to expected recipient"
	}
	if total.Cmp(maxAmount) > 0 {
		return 0, "deposit amount exceeds ledger ceiling"
	}
	return total.Uint64(), ""
}

// nativeAmount checks the transaction value and destination for a native
// asset deposit. Returns reason "pending" when the transaction body is
// not retrievable yet.
func (v *Verifier) nativeAmount(ctx context.Context, txHash common.Hash, req verification.Request) (uint64, string) {
	tx, isPending, err := v.client.TransactionByHash(ctx, txHash)
	if err != nil {
		v.recordSourceError(err)
		return 0, "pending"
	}
	if isPending {
		return 0, "pending"
	}
	if tx.To() == nil {
		return 0, "transaction is a contract creation, not a deposit"
	}
	if *tx.To() != common.HexToAddress(req.Recipient) {
		return 0, "unexpected recipient"
	}
	value := tx.Value()
	if value.Cmp(maxAmount) > 0 {
		return 0, "deposit amount exceeds ledger ceiling"
	}
	return value.Uint64(), ""
}

func (v *Verifier) recordSourceError(err error) {
	if v.breaker == nil {
		return
	}
	// Only count infrastructure failures against the breaker; a missing
	// receipt is a normal propagation delay.
	msg := err.Error()
	if strings.Contains(msg, "not found") {
		return
	}
	v.breaker.RecordFailure()
}

// isTxHash reports whether s is a well-formed 32-byte hex hash
func isTxHash(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
