package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-settler/pkg/bpsmath"
	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
	"github.com/speedrun-hq/speedrun-settler/pkg/fees"
	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
	"github.com/speedrun-hq/speedrun-settler/pkg/metrics"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
	"github.com/speedrun-hq/speedrun-settler/pkg/registry"
	"github.com/speedrun-hq/speedrun-settler/pkg/verification"
)

// Config holds the engine's settlement parameters
type Config struct {
	// ProtocolFeeBps is frozen onto each intent at creation time
	ProtocolFeeBps uint32
	// MaxDeadline bounds how far in the future a deadline may be
	MaxDeadline time.Duration
	// SolverAllowlist restricts who may submit quotes; empty allows all
	SolverAllowlist []string
	// Capacity bounds intent creation
	Capacity CapacityConfig
}

// Deps wires the engine's collaborators
type Deps struct {
	Registry  *registry.Registry
	Ledger    *escrow.Ledger
	Verifiers map[string]verification.Verifier
	Deriver   AddressDeriver
	Transfers TransferLedger
	Events    EventSink
	Logger    logger.Logger
}

// Engine owns the intent lifecycle: quoting, deposit verification,
// escrow custody and settlement. All operations serialize on one mutex,
// matching the single-writer model the custody invariants assume; the
// escrow ledger keeps its own lock so invariant checks can run without
// stopping the engine.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	registry  *registry.Registry
	ledger    *escrow.Ledger
	verifiers map[string]verification.Verifier
	deriver   AddressDeriver
	transfers TransferLedger
	events    EventSink
	logger    logger.Logger

	solvers       map[string]bool
	intents       map[uint64]*models.Intent
	ownerIntents  map[string][]uint64
	nextID        uint64
	collectedFees map[string]uint64
	guard         *capacityGuard

	// now is swapped in tests to drive deadlines
	now func() time.Time
}

// New creates a settlement engine
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("escrow ledger is required")
	}
	if deps.Transfers == nil {
		return nil, fmt.Errorf("transfer ledger is required")
	}
	log := deps.Logger
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.MaxDeadline <= 0 {
		cfg.MaxDeadline = 7 * 24 * time.Hour
	}

	solvers := make(map[string]bool, len(cfg.SolverAllowlist))
	for _, s := range cfg.SolverAllowlist {
		solvers[s] = true
	}

	return &Engine{
		cfg:           cfg,
		registry:      deps.Registry,
		ledger:        deps.Ledger,
		verifiers:     deps.Verifiers,
		deriver:       deps.Deriver,
		transfers:     deps.Transfers,
		events:        deps.Events,
		logger:        log,
		solvers:       solvers,
		intents:       make(map[uint64]*models.Intent),
		ownerIntents:  make(map[string][]uint64),
		nextID:        1,
		collectedFees: make(map[string]uint64),
		guard:         newCapacityGuard(cfg.Capacity),
		now:           time.Now,
	}, nil
}

// CreateIntentParams carries the inputs to CreateIntent
type CreateIntentParams struct {
	Owner        string
	Source       models.ChainAsset
	Destination  models.ChainAsset
	SourceAmount uint64
	MinOutput    uint64
	Recipient    string
	Deadline     time.Time
}

// CreateIntent registers a new intent in PendingQuote status and returns
// its id. The protocol fee rate in force now is frozen onto the intent.
func (e *Engine) CreateIntent(ctx context.Context, p CreateIntentParams) (uint64, error) {
	if err := validateIdentity("owner", p.Owner); err != nil {
		return 0, err
	}
	if p.SourceAmount == 0 {
		return 0, fmt.Errorf("%w: source amount must be positive", ErrInvalidAmount)
	}
	if p.MinOutput == 0 {
		return 0, fmt.Errorf("%w: minimum output must be positive", ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !p.Deadline.After(now) {
		return 0, fmt.Errorf("%w: deadline is in the past", ErrInvalidDeadline)
	}
	if p.Deadline.After(now.Add(e.cfg.MaxDeadline)) {
		return 0, fmt.Errorf("%w: deadline exceeds maximum window of %s", ErrInvalidDeadline, e.cfg.MaxDeadline)
	}

	srcInfo, ok := e.registry.Lookup(p.Source.Chain, p.Source.ChainID)
	if !ok {
		return 0, fmt.Errorf("%w: source chain %s/%d", ErrChainNotSupported, p.Source.Chain, p.Source.ChainID)
	}
	dstInfo, ok := e.registry.Lookup(p.Destination.Chain, p.Destination.ChainID)
	if !ok {
		return 0, fmt.Errorf("%w: destination chain %s/%d", ErrChainNotSupported, p.Destination.Chain, p.Destination.ChainID)
	}
	if err := validateAddress(dstInfo, p.Recipient); err != nil {
		return 0, err
	}
	if srcInfo.Kind == registry.KindEVM && p.Source.Asset != "" && !common.IsHexAddress(p.Source.Asset) {
		return 0, fmt.Errorf("%w: source asset %q is not a token address", ErrInvalidInput, p.Source.Asset)
	}

	if err := e.guard.checkCreate(p.Owner); err != nil {
		return 0, err
	}

	id := e.nextID

	// Derive before inserting: a derivation failure must leave no record
	depositAddress := ""
	if e.deriver != nil {
		addr, err := e.deriver.DeriveAddress(ctx, srcInfo.Name, id, p.Owner)
		if err != nil {
			return 0, fmt.Errorf("%w: deposit address derivation: %v", ErrInternal, err)
		}
		depositAddress = addr
	}

	intent := &models.Intent{
		ID:             id,
		Owner:          p.Owner,
		Source:         p.Source,
		Destination:    p.Destination,
		SourceAmount:   p.SourceAmount,
		MinOutput:      p.MinOutput,
		Recipient:      p.Recipient,
		Deadline:       p.Deadline,
		Status:         models.StatusPendingQuote,
		ProtocolFeeBps: e.cfg.ProtocolFeeBps,
		CreatedAt:      now,
		UpdatedAt:      now,
		DepositAddress: depositAddress,
	}

	e.nextID++
	e.intents[id] = intent
	e.ownerIntents[p.Owner] = append(e.ownerIntents[p.Owner], id)
	e.guard.recordCreate(p.Owner)

	metrics.IntentsCreated.WithLabelValues(srcInfo.Name).Inc()
	metrics.ActiveIntents.Inc()

	ev := models.NewEvent(models.EventIntentCreated, id, now)
	ev.Owner = p.Owner
	ev.Asset = p.Source.Asset
	ev.Amount = p.SourceAmount
	e.emit(ev)

	e.logger.InfoWithChain(srcInfo.Name, "Intent %d created by %s: %d in, min %d out to %s",
		id, p.Owner, p.SourceAmount, p.MinOutput, p.Destination.Chain)
	return id, nil
}

// SubmitQuoteParams carries a solver's offer
type SubmitQuoteParams struct {
	Solver       string
	OutputAmount uint64
	Fee          uint64
	Tip          uint64
	DestAddress  string
	Expiry       time.Time
}

// SubmitQuote records a solver quote against an intent. The first
// accepted quote moves the intent from PendingQuote to Quoted. A solver
// may re-quote; the latest quote wins at confirmation time.
func (e *Engine) SubmitQuote(intentID uint64, p SubmitQuoteParams) error {
	if err := validateIdentity("solver", p.Solver); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	intent, ok := e.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, intentID)
	}

	now := e.now()
	if !now.Before(intent.Deadline) {
		return fmt.Errorf("%w: deadline %s has passed", ErrExpired, intent.Deadline.Format(time.RFC3339))
	}
	if intent.Status != models.StatusPendingQuote && intent.Status != models.StatusQuoted {
		return fmt.Errorf("%w: cannot quote an intent in status %s", ErrInvalidStatus, intent.Status)
	}
	if len(e.solvers) > 0 && !e.solvers[p.Solver] {
		return fmt.Errorf("%w: solver %s is not registered", ErrInvalidQuote, p.Solver)
	}
	if len(intent.Quotes) >= maxQuotesPerInt {
		return fmt.Errorf("%w: quote limit of %d reached", ErrRateLimitExceeded, maxQuotesPerInt)
	}

	if p.OutputAmount == 0 {
		return fmt.Errorf("%w: output amount must be positive", ErrInvalidAmount)
	}
	if p.OutputAmount < intent.MinOutput {
		return fmt.Errorf("%w: output %d below minimum %d", ErrInvalidQuote, p.OutputAmount, intent.MinOutput)
	}

	expiry := p.Expiry
	if expiry.IsZero() {
		expiry = intent.Deadline
	}
	if !expiry.After(now) {
		return fmt.Errorf("%w: quote expiry is in the past", ErrInvalidQuote)
	}
	if expiry.After(intent.Deadline) {
		return fmt.Errorf("%w: quote expiry exceeds intent deadline", ErrInvalidQuote)
	}
	if p.DestAddress != "" {
		srcInfo, ok := e.registry.Lookup(intent.Source.Chain, intent.Source.ChainID)
		if ok {
			if err := validateAddress(srcInfo, p.DestAddress); err != nil {
				return fmt.Errorf("%w: payout address: %v", ErrInvalidQuote, err)
			}
		}
	}

	quote := models.Quote{
		Solver:       p.Solver,
		OutputAmount: p.OutputAmount,
		Fee:          p.Fee,
		Tip:          p.Tip,
		DestAddress:  p.DestAddress,
		Expiry:       expiry,
		SubmittedAt:  now,
	}

	// Reject quotes that could never settle under the frozen fee rate
	if _, err := fees.Calculate(p.OutputAmount, intent.ProtocolFeeBps, quote); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuote, err)
	}

	intent.Quotes = append(intent.Quotes, quote)
	if intent.Status == models.StatusPendingQuote {
		intent.Status = models.StatusQuoted
	}
	intent.UpdatedAt = now

	metrics.QuotesSubmitted.Inc()

	ev := models.NewEvent(models.EventIntentQuoted, intentID, now)
	ev.Owner = intent.Owner
	ev.Amount = p.OutputAmount
	ev.Reference = p.Solver
	e.emit(ev)

	e.logger.Debug("Quote on intent %d from %s: output %d, fee %d, tip %d",
		intentID, p.Solver, p.OutputAmount, p.Fee, p.Tip)
	return nil
}

// ConfirmQuote selects a solver's quote on behalf of the intent owner
// and moves the intent to Confirmed.
func (e *Engine) ConfirmQuote(intentID uint64, caller, solver string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, ok := e.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, intentID)
	}
	if caller != intent.Owner {
		return fmt.Errorf("%w: %s cannot confirm intent %d", ErrUnauthorized, caller, intentID)
	}

	now := e.now()
	if !now.Before(intent.Deadline) {
		return fmt.Errorf("%w: deadline %s has passed", ErrExpired, intent.Deadline.Format(time.RFC3339))
	}
	if !intent.Status.CanTransitionTo(models.StatusConfirmed) {
		return fmt.Errorf("%w: cannot confirm an intent in status %s", ErrInvalidStatus, intent.Status)
	}

	quote := intent.QuoteBySolver(solver)
	if quote == nil {
		return fmt.Errorf("%w: no quote from solver %s", ErrInvalidQuote, solver)
	}
	if !now.Before(quote.Expiry) {
		return fmt.Errorf("%w: quote from %s expired at %s", ErrInvalidQuote, solver, quote.Expiry.Format(time.RFC3339))
	}

	selected := *quote
	intent.SelectedQuote = &selected
	intent.Status = models.StatusConfirmed
	intent.UpdatedAt = now

	ev := models.NewEvent(models.EventIntentConfirmed, intentID, now)
	ev.Owner = intent.Owner
	ev.Amount = selected.OutputAmount
	ev.Reference = solver
	e.emit(ev)

	e.logger.Info("Intent %d confirmed with solver %s at output %d", intentID, solver, selected.OutputAmount)
	return nil
}

// MarkDeposited records a verified source deposit: the amount is locked
// in escrow and the intent moves to Deposited. The caller vouches for
// the verification; VerifyAndMarkDeposited runs the chain check itself.
func (e *Engine) MarkDeposited(intentID uint64, caller string, verifiedAmount uint64, proof string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markDepositedLocked(intentID, caller, verifiedAmount, proof)
}

func (e *Engine) markDepositedLocked(intentID uint64, caller string, verifiedAmount uint64, proof string) error {
	intent, ok := e.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, intentID)
	}
	if caller != intent.Owner {
		return fmt.Errorf("%w: %s cannot mark intent %d deposited", ErrUnauthorized, caller, intentID)
	}
	if !intent.Status.CanTransitionTo(models.StatusDeposited) {
		return fmt.Errorf("%w: cannot mark an intent in status %s deposited", ErrInvalidStatus, intent.Status)
	}
	if verifiedAmount == 0 {
		return fmt.Errorf("%w: verified amount must be positive", ErrInvalidAmount)
	}
	if verifiedAmount < intent.SourceAmount {
		return fmt.Errorf("%w: verified deposit %d below required %d", ErrInvalidAmount, verifiedAmount, intent.SourceAmount)
	}

	asset := intent.Source.Asset

	// Lock escrow first; only then commit the transition. If the commit
	// can no longer proceed the lock is rolled back so a failed call
	// leaves no trace.
	if err := e.ledger.Lock(intent.Owner, asset, verifiedAmount); err != nil {
		return fmt.Errorf("%w: escrow lock: %v", ErrInternal, err)
	}
	if !intent.Status.CanTransitionTo(models.StatusDeposited) {
		if rbErr := e.ledger.Release(intent.Owner, asset, verifiedAmount); rbErr != nil {
			metrics.CriticalInconsistencies.Inc()
			e.logger.Error("CRITICAL: escrow rollback failed for intent %d: %v", intentID, rbErr)
		}
		return fmt.Errorf("%w: status changed during deposit", ErrInvalidStatus)
	}

	now := e.now()
	intent.Status = models.StatusDeposited
	intent.EscrowBalance = verifiedAmount
	intent.VerifiedAt = &now
	intent.UpdatedAt = now
	if proof != "" {
		intent.DepositProof = proof
	}

	metrics.EscrowLocked.WithLabelValues(asset).Add(float64(verifiedAmount))

	lockEv := models.NewEvent(models.EventEscrowLocked, intentID, now)
	lockEv.Owner = intent.Owner
	lockEv.Asset = asset
	lockEv.Amount = verifiedAmount
	e.emit(lockEv)

	depEv := models.NewEvent(models.EventIntentDeposited, intentID, now)
	depEv.Owner = intent.Owner
	depEv.Asset = asset
	depEv.Amount = verifiedAmount
	depEv.Reference = proof
	e.emit(depEv)

	e.logger.InfoWithChain(intent.Source.Chain, "Intent %d deposited: %d %s escrowed", intentID, verifiedAmount, asset)
	return nil
}

// VerifyAndMarkDeposited runs the source-chain verification backend for
// the given proof and, on success, locks escrow and commits the
// transition. A Pending result returns with no error and no state
// change; a Failed result returns ErrVerificationFailed.
func (e *Engine) VerifyAndMarkDeposited(ctx context.Context, intentID uint64, caller, txHash string, outputIndex uint32) (verification.Result, error) {
	e.mu.Lock()
	intent, ok := e.intents[intentID]
	if !ok {
		e.mu.Unlock()
		return verification.Result{}, fmt.Errorf("%w: id %d", ErrNotFound, intentID)
	}
	if caller != intent.Owner {
		e.mu.Unlock()
		return verification.Result{}, fmt.Errorf("%w: %s cannot verify intent %d", ErrUnauthorized, caller, intentID)
	}
	if !intent.Status.CanTransitionTo(models.StatusDeposited) {
		e.mu.Unlock()
		return verification.Result{}, fmt.Errorf("%w: cannot verify an intent in status %s", ErrInvalidStatus, intent.Status)
	}
	if intent.DepositAddress == "" {
		e.mu.Unlock()
		return verification.Result{}, fmt.Errorf("%w: intent %d has no deposit address", ErrInternal, intentID)
	}

	srcInfo, ok := e.registry.Lookup(intent.Source.Chain, intent.Source.ChainID)
	if !ok {
		e.mu.Unlock()
		return verification.Result{}, fmt.Errorf("%w: source chain %s", ErrChainNotSupported, intent.Source.Chain)
	}
	verifier, ok := e.verifiers[srcInfo.Name]
	if !ok {
		e.mu.Unlock()
		return verification.Result{}, fmt.Errorf("%w: no verification backend for %s", ErrChainNotSupported, srcInfo.Name)
	}

	req := verification.Request{
		Recipient:             intent.DepositAddress,
		MinAmount:             intent.SourceAmount,
		TxHash:                txHash,
		OutputIndex:           outputIndex,
		RequiredConfirmations: srcInfo.RequiredConfirmations,
	}
	if srcInfo.Kind == registry.KindEVM && common.IsHexAddress(intent.Source.Asset) {
		req.Asset = intent.Source.Asset
	}
	// The chain call happens outside the engine lock: verification can
	// take seconds and must not stall unrelated intents.
	e.mu.Unlock()

	result := verifier.Verify(ctx, req)
	metrics.VerificationResults.WithLabelValues(srcInfo.Name, result.Outcome.String()).Inc()

	switch result.Outcome {
	case verification.OutcomeSuccess:
		e.mu.Lock()
		err := e.markDepositedLocked(intentID, caller, result.Amount, result.Reference)
		e.mu.Unlock()
		return result, err
	case verification.OutcomeFailed:
		e.logger.NoticeWithChain(srcInfo.Name, "Verification failed for intent %d: %s", intentID, result.Reason)
		return result, fmt.Errorf("%w: %s", ErrVerificationFailed, result.Reason)
	default:
		e.logger.DebugWithChain(srcInfo.Name, "Verification pending for intent %d: %d/%d confirmations",
			intentID, result.Confirmations, result.Required)
		return result, nil
	}
}

// Fulfill pays the selected solver out of escrow, collects the protocol
// fee and moves the intent to Fulfilled. A payout failure leaves all
// state unchanged so the call can be retried.
func (e *Engine) Fulfill(ctx context.Context, intentID uint64) (models.FeeBreakdown, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, ok := e.intents[intentID]
	if !ok {
		return models.FeeBreakdown{}, fmt.Errorf("%w: id %d", ErrNotFound, intentID)
	}
	if !intent.Status.CanTransitionTo(models.StatusFulfilled) {
		return models.FeeBreakdown{}, fmt.Errorf("%w: cannot fulfill an intent in status %s", ErrInvalidStatus, intent.Status)
	}
	if intent.SelectedQuote == nil {
		return models.FeeBreakdown{}, fmt.Errorf("%w: intent %d deposited without a selected quote", ErrInternal, intentID)
	}

	quote := *intent.SelectedQuote
	breakdown, err := fees.Calculate(quote.OutputAmount, intent.ProtocolFeeBps, quote)
	if err != nil {
		return models.FeeBreakdown{}, fmt.Errorf("%w: %v", ErrInvalidFee, err)
	}
	if breakdown.HighFeeRate {
		metrics.HighFeeQuotes.Inc()
		e.logger.Notice("Intent %d settles at a high combined fee rate: %d of %d", intentID, breakdown.TotalFees, quote.OutputAmount)
	}

	asset := intent.Source.Asset
	escrowed := intent.EscrowBalance
	payout, err := bpsmath.CheckedSub(escrowed, breakdown.ProtocolFee)
	if err != nil {
		return models.FeeBreakdown{}, fmt.Errorf("%w: protocol fee %d exceeds escrowed %d", ErrInvalidFee, breakdown.ProtocolFee, escrowed)
	}

	dest := quote.DestAddress
	if dest == "" {
		dest = quote.Solver
	}

	ref, err := e.transfers.Transfer(ctx, EscrowAccount, dest, asset, payout)
	if err != nil {
		metrics.TransferFailures.WithLabelValues("fulfill").Inc()
		return models.FeeBreakdown{}, fmt.Errorf("%w: payout to %s: %v", ErrTransferFailed, dest, err)
	}

	// Funds have moved: commit the transition unconditionally so a
	// release failure can never cause a second payout.
	now := e.now()
	intent.Status = models.StatusFulfilled
	intent.SettlementRef = ref
	intent.EscrowBalance = 0
	intent.UpdatedAt = now
	e.guard.recordTerminal(intent.Owner)

	if newTotal, addErr := bpsmath.CheckedAdd(e.collectedFees[asset], breakdown.ProtocolFee); addErr == nil {
		e.collectedFees[asset] = newTotal
	} else {
		metrics.CriticalInconsistencies.Inc()
		e.logger.Error("CRITICAL: collected fee counter overflow for %s", asset)
	}

	metrics.IntentsSettled.WithLabelValues("fulfilled").Inc()
	metrics.ActiveIntents.Dec()
	metrics.EscrowLocked.WithLabelValues(asset).Sub(float64(escrowed))
	metrics.FeesCollected.WithLabelValues(asset).Add(float64(breakdown.ProtocolFee))

	var releaseErr error
	if err := e.ledger.Release(intent.Owner, asset, escrowed); err != nil {
		metrics.CriticalInconsistencies.Inc()
		e.logger.Error("CRITICAL: escrow release failed after payout for intent %d: %v", intentID, err)
		releaseErr = fmt.Errorf("%w: escrow release after payout: %w", ErrInternal, err)
	}

	relEv := models.NewEvent(models.EventEscrowReleased, intentID, now)
	relEv.Owner = intent.Owner
	relEv.Asset = asset
	relEv.Amount = escrowed
	e.emit(relEv)

	feeEv := models.NewEvent(models.EventFeeCollected, intentID, now)
	feeEv.Asset = asset
	feeEv.Amount = breakdown.ProtocolFee
	e.emit(feeEv)

	fulEv := models.NewEvent(models.EventIntentFulfilled, intentID, now)
	fulEv.Owner = intent.Owner
	fulEv.Asset = asset
	fulEv.Amount = payout
	fulEv.Reference = ref
	e.emit(fulEv)

	e.logger.Info("Intent %d fulfilled: %d %s to %s (protocol fee %d), ref %s",
		intentID, payout, asset, dest, breakdown.ProtocolFee, ref)
	return breakdown, releaseErr
}

// Cancel terminates an intent on the owner's request. Escrowed funds,
// if any, are refunded to the owner first; a refund failure aborts the
// cancellation with all state unchanged.
func (e *Engine) Cancel(ctx context.Context, intentID uint64, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, ok := e.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, intentID)
	}
	if caller != intent.Owner {
		return fmt.Errorf("%w: %s cannot cancel intent %d", ErrUnauthorized, caller, intentID)
	}
	if intent.Status.IsTerminal() {
		return fmt.Errorf("%w: intent %d is already %s", ErrInvalidStatus, intentID, intent.Status)
	}

	return e.terminateLocked(ctx, intent, models.StatusCancelled)
}

// terminateLocked refunds any escrow and commits a terminal transition.
// Callers hold the engine mutex and have validated the transition.
func (e *Engine) terminateLocked(ctx context.Context, intent *models.Intent, target models.IntentStatus) error {
	asset := intent.Source.Asset
	escrowed := intent.EscrowBalance
	now := e.now()

	if escrowed > 0 {
		op := "cancel-refund"
		if target == models.StatusExpired {
			op = "expire-refund"
		}
		if _, err := e.transfers.Transfer(ctx, EscrowAccount, intent.Owner, asset, escrowed); err != nil {
			metrics.TransferFailures.WithLabelValues(op).Inc()
			return fmt.Errorf("%w: refund to %s: %v", ErrTransferFailed, intent.Owner, err)
		}
	}

	intent.Status = target
	intent.UpdatedAt = now
	e.guard.recordTerminal(intent.Owner)
	metrics.ActiveIntents.Dec()

	var releaseErr error
	if escrowed > 0 {
		intent.EscrowBalance = 0
		metrics.EscrowLocked.WithLabelValues(asset).Sub(float64(escrowed))
		if err := e.ledger.Release(intent.Owner, asset, escrowed); err != nil {
			metrics.CriticalInconsistencies.Inc()
			e.logger.Error("CRITICAL: escrow release failed after refund for intent %d: %v", intent.ID, err)
			releaseErr = fmt.Errorf("%w: escrow release after refund: %w", ErrInternal, err)
		}

		relEv := models.NewEvent(models.EventEscrowReleased, intent.ID, now)
		relEv.Owner = intent.Owner
		relEv.Asset = asset
		relEv.Amount = escrowed
		e.emit(relEv)
	}

	evType := models.EventIntentCancelled
	outcome := "cancelled"
	if target == models.StatusExpired {
		evType = models.EventIntentExpired
		outcome = "expired"
	}
	metrics.IntentsSettled.WithLabelValues(outcome).Inc()

	ev := models.NewEvent(evType, intent.ID, now)
	ev.Owner = intent.Owner
	ev.Asset = asset
	ev.Amount = escrowed
	e.emit(ev)

	e.logger.Info("Intent %d %s (refunded %d %s)", intent.ID, outcome, escrowed, asset)
	return releaseErr
}

// GetIntent returns a deep copy of the intent, or false if unknown
func (e *Engine) GetIntent(intentID uint64) (*models.Intent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, ok := e.intents[intentID]
	if !ok {
		return nil, false
	}
	return intent.Clone(), true
}

// GetUserIntents returns copies of all intents created by owner, oldest
// first.
func (e *Engine) GetUserIntents(owner string) []*models.Intent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.ownerIntents[owner]
	out := make([]*models.Intent, 0, len(ids))
	for _, id := range ids {
		if intent, ok := e.intents[id]; ok {
			out = append(out, intent.Clone())
		}
	}
	return out
}

// GetEscrowBalance returns the locked balance for an (owner, asset)
// account.
func (e *Engine) GetEscrowBalance(owner, asset string) uint64 {
	return e.ledger.Balance(owner, asset)
}

// CollectedFee is one asset's accumulated protocol fee total
type CollectedFee struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// GetCollectedFees returns the protocol fees accumulated per asset
func (e *Engine) GetCollectedFees() []CollectedFee {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]CollectedFee, 0, len(e.collectedFees))
	for asset, amount := range e.collectedFees {
		out = append(out, CollectedFee{Asset: asset, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// VerifyEscrowInvariants re-checks the escrow ledger accounting
func (e *Engine) VerifyEscrowInvariants() error {
	return e.ledger.VerifyInvariants()
}

func (e *Engine) emit(ev models.Event) {
	if e.events != nil {
		e.events.Emit(ev)
	}
}
