package ledger

import "errors"

var (
	// ErrAlreadyOpen guards the one-open-position-per-market invariant.
	// Not fatal: callers skip the opportunity and continue the cycle.
	ErrAlreadyOpen = errors.New("position already open for market")

	// ErrStaleQuote rejects an opportunity whose quote is older than the
	// configured maximum age at open time.
	ErrStaleQuote = errors.New("quote too old to act on")

	// ErrPartialFillRisk means one leg filled without the other, turning
	// a risk-free arbitrage into a directional bet. An unwind has been
	// attempted before this error is returned.
	ErrPartialFillRisk = errors.New("partial fill risk")

	// ErrGatewayTimeout means fill status is unknown. Handled like a
	// partial fill: unwind attempted, escalated if that fails.
	ErrGatewayTimeout = errors.New("gateway timeout, fill status unknown")

	// ErrUnknownPosition is a caller programming error: the id does not
	// reference a tracked position.
	ErrUnknownPosition = errors.New("unknown position")

	// ErrTerminalState rejects transitions out of settled or cancelled.
	ErrTerminalState = errors.New("position already in terminal state")
)
