package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidRequest = errors.New("invalid request")

	// 券商侧错误
	ErrRemoteUnavailable    = errors.New("remote unavailable")
	ErrRemoteRejected       = errors.New("remote rejected")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrDecodeFailed         = errors.New("decode failed")

	// ErrLedgerWriteFailed marks a ledger write that failed after the broker accepted the order.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
)

// RemoteError carries a broker failure. Message is the broker's text, verbatim when available.
type RemoteError struct {
	Kind    error
	Op      string
	Message string
	OrderID string
}

func (e *RemoteError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Kind
}

// NewRemoteError builds a RemoteError of the given kind.
func NewRemoteError(kind error, op, message string) *RemoteError {
	if message == "" && kind != nil {
		message = kind.Error()
	}
	return &RemoteError{Kind: kind, Op: op, Message: message}
}

// IsRemote reports whether err belongs to the broker failure family.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) ||
		errors.Is(err, ErrRemoteRejected) ||
		errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrDecodeFailed)
}

// RemoteDetail returns the human-readable detail for an outcome message.
func RemoteDetail(err error) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// RemoteOrderID extracts an order id the broker assigned before failing, if any.
func RemoteOrderID(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.OrderID
	}
	return ""
}
