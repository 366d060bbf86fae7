package core

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded   = errors.New("backend capacity exceeded")
	ErrQuotaExceeded      = errors.New("account quota exceeded")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrUnsupported        = errors.New("operation not supported by backend")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
)

type QuotaScope string

const (
	QuotaTenant  QuotaScope = "tenant"
	QuotaEndUser QuotaScope = "end_user"
)

// QuotaError reports which cap was hit.
type QuotaError struct {
	Scope   QuotaScope
	Limit   int
	Current int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d of %d accounts in use", e.Scope, e.Current, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// BackendError carries enough context to replay a failed remote call by hand.
type BackendError struct {
	BackendID string
	Kind      BackendKind
	Op        string
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend %s: %s failed: %v", e.Kind, e.BackendID, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Unavailable wraps err as a BackendUnavailable failure for op.
func Unavailable(backendID string, kind BackendKind, op string, err error) error {
	if errors.Is(err, ErrBackendUnavailable) {
		return &BackendError{BackendID: backendID, Kind: kind, Op: op, Err: err}
	}
	return &BackendError{BackendID: backendID, Kind: kind, Op: op, Err: fmt.Errorf("%w: %v", ErrBackendUnavailable, err)}
}

// NotFound builds an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
