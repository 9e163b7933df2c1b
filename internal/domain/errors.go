package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ContentionError wraps a storage error caused by lock contention between
// concurrent transactions. Retriable for matching attempts only; placement
// and cancellation fail fast instead.
type ContentionError struct {
	Op  string // Operation that hit contention (e.g. "match", "settle")
	Err error  // Underlying error
}

func (e *ContentionError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ContentionError) IsRetriable() bool {
	return true
}

func (e *ContentionError) Unwrap() error {
	return e.Err
}

// NewContentionError creates a retriable lock-contention error
func NewContentionError(op string, err error) *ContentionError {
	return &ContentionError{Op: op, Err: err}
}

var (
	// ErrInsufficientFunds is returned when a buy order's cost exceeds the
	// account balance. Definitive rejection, never retried.
	ErrInsufficientFunds = errors.New("insufficient fiat balance")

	// ErrInsufficientAsset is returned when a sell order's amount exceeds the
	// available holding. Definitive rejection, never retried.
	ErrInsufficientAsset = errors.New("insufficient asset balance")

	// ErrOrderNotCancellable is returned when cancelling an order whose
	// status is no longer open.
	ErrOrderNotCancellable = errors.New("only open orders can be cancelled")

	// ErrOrderNotFound is returned when an order id does not exist or does
	// not belong to the requesting account.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnsupportedSymbol is returned when placing an order for a symbol
	// outside the configured set.
	ErrUnsupportedSymbol = errors.New("unsupported symbol")

	// ErrInsufficientLockedFunds signals a settlement integrity violation:
	// the buy order's reservation no longer covers the buyer's total due.
	// Must never occur under correct operation; fatal, never retried.
	ErrInsufficientLockedFunds = errors.New("buyer has insufficient locked funds")
)
