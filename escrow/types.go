package escrow

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of a trade escrow.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusDocumentsVerified
	StatusShipped
	StatusDelivered
	StatusCompleted
	StatusDisputed
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusFunded, StatusDocumentsVerified, StatusShipped,
		StatusDelivered, StatusCompleted, StatusDisputed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// String returns the stable machine tag for the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusDocumentsVerified:
		return "documents_verified"
	case StatusShipped:
		return "shipped"
	case StatusDelivered:
		return "delivered"
	case StatusCompleted:
		return "completed"
	case StatusDisputed:
		return "disputed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Label returns the human-readable form of the status.
func (s Status) Label() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusFunded:
		return "Funded"
	case StatusDocumentsVerified:
		return "Documents Verified"
	case StatusShipped:
		return "Shipped"
	case StatusDelivered:
		return "Delivered"
	case StatusCompleted:
		return "Completed"
	case StatusDisputed:
		return "Disputed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Resolution records the arbitrator's split for a disputed trade. It is
// persisted before any payout moves so a retry after a failed transfer
// resumes the same split instead of inventing a new one.
type Resolution struct {
	SellerAmount *big.Int
	Note         string
	SellerPaid   bool
}

// Clone returns a deep copy of the resolution.
func (r *Resolution) Clone() *Resolution {
	if r == nil {
		return nil
	}
	clone := *r
	if r.SellerAmount != nil {
		clone.SellerAmount = new(big.Int).Set(r.SellerAmount)
	} else {
		clone.SellerAmount = big.NewInt(0)
	}
	return &clone
}

// Trade captures the immutable party bindings and runtime status of a single
// trade escrow. The identifier is the keccak256 hash of the four parties and
// a caller-supplied nonce, ensuring deterministic IDs without a counter.
type Trade struct {
	ID            [32]byte
	Buyer         [20]byte
	Seller        [20]byte
	Verifier      [20]byte
	Arbitrator    [20]byte
	Price         *big.Int
	Description   string
	DocumentHash  [32]byte
	HeldBalance   *big.Int
	CreatedAt     int64
	FundedAt      int64
	ShippedAt     int64
	DisputeReason string
	CancelReason  string
	Resolution    *Resolution
	Status        Status
}

// Clone returns a deep copy of the trade so callers can safely mutate the
// copy without affecting the stored instance.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Price != nil {
		clone.Price = new(big.Int).Set(t.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if t.HeldBalance != nil {
		clone.HeldBalance = new(big.Int).Set(t.HeldBalance)
	} else {
		clone.HeldBalance = big.NewInt(0)
	}
	clone.Resolution = t.Resolution.Clone()
	return &clone
}

// SanitizeTrade validates and normalises the supplied trade definition,
// returning a cloned instance with non-nil amount fields. The function does
// not mutate the original value.
func SanitizeTrade(t *Trade) (*Trade, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil trade", ErrInvalidArgument)
	}
	clone := t.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	if clone.HeldBalance.Sign() < 0 {
		return nil, fmt.Errorf("%w: held balance must be non-negative", ErrInvalidArgument)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %d", ErrInvalidArgument, clone.Status)
	}
	if clone.Buyer == ([20]byte{}) || clone.Seller == ([20]byte{}) ||
		clone.Verifier == ([20]byte{}) || clone.Arbitrator == ([20]byte{}) {
		return nil, fmt.Errorf("%w: zero party address", ErrInvalidArgument)
	}
	if clone.Buyer == clone.Seller {
		return nil, fmt.Errorf("%w: buyer and seller must differ", ErrInvalidArgument)
	}
	return clone, nil
}

// Shipped reports whether a shipment signal has been recorded for the trade,
// regardless of whether the current status tag is Shipped or a later one.
func (t *Trade) Shipped() bool {
	return t != nil && t.ShippedAt > 0
}

// DocumentsSet reports whether a document fingerprint has been recorded.
func (t *Trade) DocumentsSet() bool {
	return t != nil && t.DocumentHash != ([32]byte{})
}
