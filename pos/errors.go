package pos

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by gateways for transaction kinds the bank
// does not expose (e.g. VakıfBank has no status inquiry endpoint).
var ErrNotSupported = errors.New("pos: transaction type not supported by gateway")

// ValidationError reports bad or missing caller input. The transaction is
// not attempted and gateway state is left unchanged.
type ValidationError struct {
	Bank   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Bank == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Bank, e.Field, e.Reason)
}

// StateError reports a transaction trigger invoked out of sequence. This is
// a programmer error, not a gateway outcome.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pos: %s called in state %s", e.Op, e.State)
}

// TransportError wraps a failure of the HTTP round trip to the bank.
type TransportError struct {
	Bank string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Bank, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response body the gateway parser could not decode.
// Façades convert it into a Response with Status error instead of failing
// the trigger.
type ParseError struct {
	Bank string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse: %v", e.Bank, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
