package settlement

import "math/big"

// Channel moves value between parties. Implementations must be atomic per
// call: either the full amount moves or none of it does. Retrying a failed
// transfer is safe from the caller's perspective only if the caller tracks
// its own completion, which the escrow engine does via its held balance.
type Channel interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}
