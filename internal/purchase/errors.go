package purchase

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady          = errors.New("payments are not ready yet, please try again in a few minutes or restart the app")
	ErrAlreadyProcessing = errors.New("a payment is already in progress, please wait for it to complete")
	ErrCancelled         = errors.New("payment cancelled")
	ErrInvalidRequest    = errors.New("invalid purchase request")
	ErrAlreadyAttached   = errors.New("provider listeners already registered")
	ErrConfiguration     = errors.New("payment provider misconfigured")
	ErrProvider          = errors.New("payment provider failed")
)

// ConfigurationError reports malformed credentials for one provider.
type ConfigurationError struct {
	Kind  Kind
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s not found, please contact support", e.Kind, e.Field)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ProviderError wraps an opaque vendor failure.
type ProviderError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }

// NewProviderError wraps err unless it already carries a coordinator sentinel.
func NewProviderError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrProvider) || errors.Is(err, ErrNotReady) {
		return err
	}
	return &ProviderError{Kind: kind, Op: op, Err: err}
}
