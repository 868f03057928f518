package botcore

import (
	"errors"
	"fmt"
)

// ErrorKind classifies operation failures. All kinds except AlreadyRunning are
// per-account, per-operation and never abort a campaign.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindInsufficientBalance
	KindApprovalFailed
	KindSwapReverted
	KindTransactionTimeout
	KindAlreadyRunning
	KindCooldownActive
)

func (k ErrorKind) String() string {
	switch k {
	case KindInsufficientBalance:
		return "insufficient balance"
	case KindApprovalFailed:
		return "approval failed"
	case KindSwapReverted:
		return "swap reverted"
	case KindTransactionTimeout:
		return "transaction timeout"
	case KindAlreadyRunning:
		return "already running"
	case KindCooldownActive:
		return "cooldown active"
	default:
		return "transport error"
	}
}

// OpError wraps an underlying failure with its kind.
type OpError struct {
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opErrf(kind ErrorKind, format string, a ...any) *OpError {
	return &OpError{Kind: kind, Err: fmt.Errorf(format, a...)}
}

// KindOf extracts the kind from err, defaulting to KindTransport for plain
// transport/RPC failures.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Kind == kind
}
