package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	// ErrInvalidInput marks malformed user input rejected before any call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPrecondition marks an action whose on-chain preconditions are not
	// met according to the cached state.
	ErrPrecondition = errors.New("precondition not met")
	// ErrPermission marks an administrative action by a non-owner.
	ErrPermission = errors.New("permission denied")
	// ErrExternal wraps failures of the chain, wallet or bridge.
	ErrExternal    = errors.New("external call failed")
	ErrTxReverted  = errors.New("transaction reverted")
	ErrNoSnapshot  = errors.New("no snapshot")
	ErrNoSigner    = errors.New("no signer configured")
	ErrUnsupported = errors.New("unsupported")
)

// IsLocalRejection reports whether err was produced by local validation and
// therefore no transaction was submitted.
func IsLocalRejection(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrPermission)
}

// Cause returns the innermost error wrapped by err. Where an error wraps
// several, as fmt.Errorf does with more than one %w, it follows the last.
// The sentinels of this package are skipped so a tagged failure yields its
// underlying reason.
func Cause(err error) error {
	for err != nil {
		var next error
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				next = errs[len(errs)-1]
			}
		}
		if next == nil || isSentinel(next) {
			return err
		}
		err = next
	}
	return nil
}

func isSentinel(err error) bool {
	switch err {
	case ErrNotFound, ErrRateLimited, ErrUnauthorized, ErrLockHeld,
		ErrInvalidInput, ErrPrecondition, ErrPermission, ErrExternal,
		ErrTxReverted, ErrNoSnapshot, ErrNoSigner, ErrUnsupported:
		return true
	}
	return false
}
