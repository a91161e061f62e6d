package escrow

import "errors"

// Error taxonomy for trade operations. Every failure wraps exactly one of
// these sentinels together with a human-readable reason so callers can branch
// with errors.Is while operators still get a useful message.
var (
	// ErrUnauthorized marks a call by the wrong actor for the operation.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrInvalidState marks an operation whose state precondition does not hold.
	ErrInvalidState = errors.New("escrow: invalid state")
	// ErrInvalidArgument marks malformed or out-of-range call arguments.
	ErrInvalidArgument = errors.New("escrow: invalid argument")
	// ErrTransferFailed marks a settlement channel decline or error with no
	// value moved; the operation left state unchanged and may be retried.
	ErrTransferFailed = errors.New("escrow: transfer failed")
	// ErrPartialPayout marks a dispute resolution where the seller payout
	// completed but the buyer refund did not. The held balance reflects the
	// remaining portion and the resolution is retryable for the remainder.
	ErrPartialPayout = errors.New("escrow: partial payout")

	errTradeNotFound = errors.New("escrow: trade not found")
	errNilState      = errors.New("escrow: state not configured")
	errNilChannel    = errors.New("escrow: settlement channel not configured")
)
