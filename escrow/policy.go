package escrow

import "fmt"

// ReleaseMode selects who may trigger the final payment release once the
// state preconditions hold.
type ReleaseMode uint8

const (
	// ReleaseOpen lets any caller invoke the release once the trade is
	// Delivered with documents set; authorization comes from state, not
	// identity. This mirrors the original agreement semantics.
	ReleaseOpen ReleaseMode = iota
	// ReleaseParties restricts release to the buyer, seller or verifier.
	ReleaseParties
)

// ParseReleaseMode maps the configuration string to a release mode.
func ParseReleaseMode(v string) (ReleaseMode, error) {
	switch v {
	case "", "open":
		return ReleaseOpen, nil
	case "parties":
		return ReleaseParties, nil
	default:
		return ReleaseOpen, fmt.Errorf("%w: unknown release policy %q", ErrInvalidArgument, v)
	}
}

// Policy collects the configurable behaviours the agreement leaves open.
type Policy struct {
	// Release governs who may call ReleasePayment.
	Release ReleaseMode
	// LockHashAfterShipment makes the document fingerprint immutable once a
	// shipment signal exists, closing the post-shipment overwrite gap.
	LockHashAfterShipment bool
}

func (p Policy) allowRelease(t *Trade, caller [20]byte) bool {
	if p.Release == ReleaseOpen {
		return true
	}
	return caller == t.Buyer || caller == t.Seller || caller == t.Verifier
}
