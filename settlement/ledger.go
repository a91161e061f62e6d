package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("settlement: insufficient funds")
	errNegativeAmount    = errors.New("settlement: negative transfer amount")
)

// Ledger is an in-process settlement backend tracking account balances. Each
// transfer debits and credits under a single lock so partial movement is
// impossible. The escrowd daemon uses it as the value substrate behind the
// escrow vault; tests use it to observe payouts.
type Ledger struct {
	mu       sync.Mutex
	balances map[[20]byte]*big.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[[20]byte]*big.Int)}
}

// Mint credits the account with the supplied amount. Used to seed balances.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balanceLocked(addr)
	l.balances[addr] = new(big.Int).Add(current, amount)
	return nil
}

// Balance returns a copy of the account balance. Missing accounts are zero.
func (l *Ledger) Balance(addr [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(addr))
}

// Transfer atomically moves amount from one account to the other. A zero
// amount is a no-op; a negative amount or an overdraft fails without moving
// any value.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil {
		return errNegativeAmount
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal := l.balanceLocked(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal, amount)
	}
	toBal := l.balanceLocked(to)
	l.balances[from] = new(big.Int).Sub(fromBal, amount)
	l.balances[to] = new(big.Int).Add(toBal, amount)
	return nil
}

func (l *Ledger) balanceLocked(addr [20]byte) *big.Int {
	if bal, ok := l.balances[addr]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}
