package stream

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Condition classifies how a session ended.
type Condition int

const (
	// ConditionEnded means the server closed the stream cleanly.
	ConditionEnded Condition = iota
	// ConditionCancelled means the caller cancelled the session. Expected and silent.
	ConditionCancelled
	// ConditionUnimplemented means the server does not offer the stream at all.
	ConditionUnimplemented
	// ConditionTransient covers every other failure: network, deadline, decode.
	ConditionTransient
)

func (c Condition) String() string {
	switch c {
	case ConditionEnded:
		return "ended"
	case ConditionCancelled:
		return "cancelled"
	case ConditionUnimplemented:
		return "unimplemented"
	case ConditionTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned by Recv after Cancel was called.
var ErrCancelled = status.Error(codes.Canceled, "session cancelled")

// TransientError marks a failure that is retried whatever it wraps.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so that Classify reports ConditionTransient. A failed
// notification response is one: its gRPC code describes the unary call, not
// the stream.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func isTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Classify maps a terminal error onto a Condition. A nil error or io.EOF is a
// clean end.
func Classify(err error) Condition {
	if err == nil {
		return ConditionEnded
	}
	if isTransient(err) {
		return ConditionTransient
	}
	if errors.Is(err, io.EOF) {
		return ConditionEnded
	}
	if errors.Is(err, context.Canceled) {
		return ConditionCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ConditionTransient
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Canceled:
			return ConditionCancelled
		case codes.Unimplemented:
			return ConditionUnimplemented
		}
	}
	return ConditionTransient
}

// IsDeadlineExceeded reports whether err is a deadline expiry, either from
// the local context or reported by the server.
func IsDeadlineExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return status.Code(err) == codes.DeadlineExceeded
}
