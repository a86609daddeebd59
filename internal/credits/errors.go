package credits

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no account was supplied; billed operations
	// refuse immediately with no side effects.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAlreadyRefunded means the bound refund was invoked a second time.
	ErrAlreadyRefunded = errors.New("deduction already refunded")
)

// InsufficientBalanceError carries the shortfall so callers can render it
// instead of string-matching a message.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("saldo insuficiente: necessário %d créditos, disponível %d", e.Required, e.Available)
}

// RemoteError wraps a ledger call failure. The meter never retries; the
// caller decides.
type RemoteError struct {
	Op    string
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Cause }
