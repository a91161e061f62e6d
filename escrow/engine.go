package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradescrow/core/events"
	"tradescrow/core/types"
	nativecommon "tradescrow/native/common"
	"tradescrow/settlement"
)

const moduleName = "escrow"

// EngineState abstracts the persistence backend holding trade records. The
// store must return independent copies so engine mutations only become
// visible through TradePut.
type EngineState interface {
	TradePut(*Trade) error
	TradeGet(id [32]byte) (*Trade, bool)
}

// Engine wires the trade escrow state machine with external state, the
// settlement channel holding custody of the deposit, and event emitters.
// Every operation validates the caller and the state precondition before
// mutating anything; transitions on a single trade are serialised by a
// per-trade lock that doubles as the reentrancy guard around transfers.
type Engine struct {
	state   EngineState
	channel settlement.Channel
	emitter events.Emitter
	vault   [20]byte
	policy  Policy
	pauses  nativecommon.PauseView
	nowFn   func() int64

	locks sync.Map // [32]byte -> *sync.Mutex
}

// NewEngine creates a trade escrow engine with a no-op emitter and the
// default policy. Callers configure state and channel before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetChannel configures the settlement channel that moves value.
func (e *Engine) SetChannel(ch settlement.Channel) { e.channel = ch }

// SetVaultAddress configures the custody account funds are held in between
// funding and payout.
func (e *Engine) SetVaultAddress(addr [20]byte) { e.vault = addr }

// SetPolicy configures the release authorization and hash locking behaviour.
func (e *Engine) SetPolicy(p Policy) { e.policy = p }

// SetPauses configures the module pause switches consulted on every call.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(tradeEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// lockTrade acquires the per-trade mutex without blocking. A held lock means
// another transition is in flight on the same trade, including re-entry
// through a settlement callback, and the call is rejected deterministically.
func (e *Engine) lockTrade(id [32]byte) (func(), error) {
	muAny, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, fmt.Errorf("%w: another operation is in flight for this trade", ErrInvalidState)
	}
	return mu.Unlock, nil
}

func (e *Engine) loadTrade(id [32]byte) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trade, ok := e.state.TradeGet(id)
	if !ok {
		return nil, errTradeNotFound
	}
	return SanitizeTrade(trade)
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int, what string) error {
	if e.channel == nil {
		return errNilChannel
	}
	if err := e.channel.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, what, err)
	}
	return nil
}

// TradeID derives the deterministic identifier for the given party bindings
// and nonce.
func TradeID(buyer, seller, verifier, arbitrator [20]byte, nonce [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(buyer[:], seller[:], verifier[:], arbitrator[:], nonce[:])
}

// CreateTrade initialises and persists a new trade agreement. All four party
// bindings and the price are fixed for the trade's life. Creation is
// idempotent for identical definitions, matching the engine's deterministic
// identifier scheme.
func (e *Engine) CreateTrade(buyer, seller, verifier, arbitrator [20]byte, price *big.Int, description string, nonce [32]byte) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if buyer == ([20]byte{}) || seller == ([20]byte{}) || verifier == ([20]byte{}) || arbitrator == ([20]byte{}) {
		return nil, fmt.Errorf("%w: all parties must be non-zero addresses", ErrInvalidArgument)
	}
	if buyer == seller {
		return nil, fmt.Errorf("%w: buyer and seller must differ", ErrInvalidArgument)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	id := TradeID(buyer, seller, verifier, arbitrator, nonce)
	if existing, ok := e.state.TradeGet(id); ok {
		sanitized, err := SanitizeTrade(existing)
		if err != nil {
			return nil, err
		}
		if sanitized.Buyer != buyer || sanitized.Seller != seller ||
			sanitized.Verifier != verifier || sanitized.Arbitrator != arbitrator ||
			sanitized.Price.Cmp(price) != 0 || sanitized.Description != description {
			return nil, fmt.Errorf("%w: identifier already exists with different definition", ErrInvalidArgument)
		}
		return sanitized, nil
	}
	now := e.now()
	trade := &Trade{
		ID:          id,
		Buyer:       buyer,
		Seller:      seller,
		Verifier:    verifier,
		Arbitrator:  arbitrator,
		Price:       new(big.Int).Set(price),
		Description: description,
		HeldBalance: big.NewInt(0),
		CreatedAt:   now,
		Status:      StatusCreated,
	}
	if err := e.state.TradePut(trade); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(trade, buyer, now))
	return trade.Clone(), nil
}

// Fund moves the agreed price from the buyer into the escrow vault and marks
// the trade as funded. The deposit must match the price exactly.
func (e *Engine) Fund(id [32]byte, caller [20]byte, amount *big.Int) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Buyer {
		return fmt.Errorf("%w: only the buyer may fund", ErrUnauthorized)
	}
	if trade.Status != StatusCreated {
		return fmt.Errorf("%w: cannot fund in state %s", ErrInvalidState, trade.Status)
	}
	if amount == nil || amount.Cmp(trade.Price) != 0 {
		return fmt.Errorf("%w: deposit must equal the agreed price %s", ErrInvalidArgument, trade.Price)
	}
	if err := e.transfer(trade.Buyer, e.vault, amount, "fund deposit"); err != nil {
		return err
	}
	now := e.now()
	trade.HeldBalance = new(big.Int).Set(amount)
	trade.FundedAt = now
	trade.Status = StatusFunded
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewFundedEvent(trade, caller, now))
	return nil
}

// SetDocumentHash records the verifier-attested document fingerprint. From
// Funded the trade advances to DocumentsVerified; from Shipped the hash is
// recorded without a state change unless the policy locks it post-shipment.
func (e *Engine) SetDocumentHash(id [32]byte, caller [20]byte, hash [32]byte) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Verifier {
		return fmt.Errorf("%w: only the verifier may set the document hash", ErrUnauthorized)
	}
	if trade.Status != StatusFunded && trade.Status != StatusShipped {
		return fmt.Errorf("%w: cannot verify documents in state %s", ErrInvalidState, trade.Status)
	}
	if hash == ([32]byte{}) {
		return fmt.Errorf("%w: document hash must be non-zero", ErrInvalidArgument)
	}
	if e.policy.LockHashAfterShipment && trade.Shipped() && trade.DocumentsSet() {
		return fmt.Errorf("%w: document hash is locked after shipment", ErrInvalidState)
	}
	trade.DocumentHash = hash
	if trade.Status == StatusFunded {
		trade.Status = StatusDocumentsVerified
	}
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewDocumentsVerifiedEvent(trade, caller, e.now()))
	return nil
}

// MarkShipped records the seller's shipment signal.
func (e *Engine) MarkShipped(id [32]byte, caller [20]byte) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Seller {
		return fmt.Errorf("%w: only the seller may mark shipment", ErrUnauthorized)
	}
	if trade.Status != StatusFunded && trade.Status != StatusDocumentsVerified {
		return fmt.Errorf("%w: cannot ship in state %s", ErrInvalidState, trade.Status)
	}
	now := e.now()
	trade.ShippedAt = now
	trade.Status = StatusShipped
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewShippedEvent(trade, caller, now))
	return nil
}

// ConfirmDelivery records the buyer's delivery confirmation. Delivery without
// a prior shipment signal is rejected even when documents have been verified.
func (e *Engine) ConfirmDelivery(id [32]byte, caller [20]byte) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Buyer {
		return fmt.Errorf("%w: only the buyer may confirm delivery", ErrUnauthorized)
	}
	if trade.Status != StatusShipped && trade.Status != StatusDocumentsVerified {
		return fmt.Errorf("%w: cannot confirm delivery in state %s", ErrInvalidState, trade.Status)
	}
	if !trade.Shipped() {
		return fmt.Errorf("%w: no shipment signal recorded", ErrInvalidState)
	}
	trade.Status = StatusDelivered
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewDeliveredEvent(trade, caller, e.now()))
	return nil
}

// ReleasePayment pays the full held balance to the seller once the trade is
// Delivered and the document fingerprint is set. Under the open release
// policy any caller may trigger it; authorization comes from state. A failed
// transfer leaves the trade unchanged and fully retryable.
func (e *Engine) ReleasePayment(id [32]byte, caller [20]byte) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if !e.policy.allowRelease(trade, caller) {
		return fmt.Errorf("%w: release restricted to trade parties", ErrUnauthorized)
	}
	if trade.Status != StatusDelivered {
		return fmt.Errorf("%w: cannot release in state %s", ErrInvalidState, trade.Status)
	}
	if !trade.DocumentsSet() {
		return fmt.Errorf("%w: document hash not set", ErrInvalidArgument)
	}
	amount := new(big.Int).Set(trade.HeldBalance)
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: no funds held for release", ErrInvalidState)
	}
	if err := e.transfer(e.vault, trade.Seller, amount, "seller payout"); err != nil {
		return err
	}
	trade.HeldBalance = big.NewInt(0)
	trade.Status = StatusCompleted
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(trade, caller, e.now(), amount.String()))
	return nil
}

// RaiseDispute escalates the trade to arbitration. Any of buyer, seller or
// verifier may raise it from a funded, non-terminal state.
func (e *Engine) RaiseDispute(id [32]byte, caller [20]byte, reason string) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Buyer && caller != trade.Seller && caller != trade.Verifier {
		return fmt.Errorf("%w: only buyer, seller or verifier may dispute", ErrUnauthorized)
	}
	switch trade.Status {
	case StatusFunded, StatusDocumentsVerified, StatusShipped, StatusDelivered:
	default:
		return fmt.Errorf("%w: cannot dispute in state %s", ErrInvalidState, trade.Status)
	}
	trade.DisputeReason = reason
	trade.Status = StatusDisputed
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(trade, caller, e.now()))
	return nil
}

// ResolveDispute settles a disputed trade according to the arbitrator's
// split. The seller payout and buyer refund always sum to the pre-call held
// balance. The split is persisted before any value moves so a retry after a
// transfer failure resumes the remainder: a failed seller payout leaves the
// trade untouched, while a failed buyer refund after a completed seller
// payout surfaces ErrPartialPayout with the held balance reflecting only the
// outstanding portion. The terminal state is Completed when the seller
// receives anything and Cancelled on a full buyer refund.
func (e *Engine) ResolveDispute(id [32]byte, caller [20]byte, sellerAmount *big.Int, note string) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Arbitrator {
		return fmt.Errorf("%w: only the arbitrator may resolve", ErrUnauthorized)
	}
	if trade.Status != StatusDisputed {
		return fmt.Errorf("%w: cannot resolve in state %s", ErrInvalidState, trade.Status)
	}
	if sellerAmount == nil || sellerAmount.Sign() < 0 {
		return fmt.Errorf("%w: seller amount must be non-negative", ErrInvalidArgument)
	}
	if e.channel == nil {
		return errNilChannel
	}
	if trade.Resolution == nil {
		if sellerAmount.Cmp(trade.HeldBalance) > 0 {
			return fmt.Errorf("%w: seller amount %s exceeds held balance %s", ErrInvalidArgument, sellerAmount, trade.HeldBalance)
		}
		trade.Resolution = &Resolution{SellerAmount: new(big.Int).Set(sellerAmount), Note: note}
		if err := e.state.TradePut(trade); err != nil {
			return err
		}
	} else if trade.Resolution.SellerAmount.Cmp(sellerAmount) != 0 {
		return fmt.Errorf("%w: resolution already recorded with seller amount %s", ErrInvalidArgument, trade.Resolution.SellerAmount)
	}
	res := trade.Resolution
	if res.SellerAmount.Sign() > 0 && !res.SellerPaid {
		if err := e.transfer(e.vault, trade.Seller, res.SellerAmount, "seller payout"); err != nil {
			return err
		}
		res.SellerPaid = true
		trade.HeldBalance = new(big.Int).Sub(trade.HeldBalance, res.SellerAmount)
		if err := e.state.TradePut(trade); err != nil {
			return err
		}
	}
	buyerRefund := new(big.Int).Set(trade.HeldBalance)
	if buyerRefund.Sign() > 0 {
		if err := e.channel.Transfer(e.vault, trade.Buyer, buyerRefund); err != nil {
			if res.SellerPaid {
				return fmt.Errorf("%w: buyer refund of %s outstanding: %v", ErrPartialPayout, buyerRefund, err)
			}
			return fmt.Errorf("%w: buyer refund: %v", ErrTransferFailed, err)
		}
	}
	trade.HeldBalance = big.NewInt(0)
	if res.SellerAmount.Sign() > 0 {
		trade.Status = StatusCompleted
	} else {
		trade.Status = StatusCancelled
	}
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewResolvedEvent(trade, caller, e.now(), res.SellerAmount.String(), buyerRefund.String()))
	return nil
}

// CancelBeforeFunding cancels an unfunded trade. No funds move.
func (e *Engine) CancelBeforeFunding(id [32]byte, caller [20]byte, reason string) error {
	unlock, err := e.lockTrade(id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	trade, err := e.loadTrade(id)
	if err != nil {
		return err
	}
	if trade.Status.Terminal() {
		return fmt.Errorf("%w: trade is %s", ErrInvalidState, trade.Status)
	}
	if caller != trade.Buyer {
		return fmt.Errorf("%w: only the buyer may cancel", ErrUnauthorized)
	}
	if trade.Status != StatusCreated {
		return fmt.Errorf("%w: cannot cancel in state %s", ErrInvalidState, trade.Status)
	}
	trade.CancelReason = reason
	trade.Status = StatusCancelled
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(trade, caller, e.now()))
	return nil
}

// GetTrade returns a read-only copy of the trade.
func (e *Engine) GetTrade(id [32]byte) (*Trade, error) {
	return e.loadTrade(id)
}
