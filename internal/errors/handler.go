package errors

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Kind classifies a failure by how the node reacts to it.
type Kind string

const (
	KindTransport     Kind = "transport"
	KindDecode        Kind = "decode"
	KindProtocol      Kind = "protocol"
	KindTimeout       Kind = "timeout"
	KindUnreachable   Kind = "unreachable"
	KindConfiguration Kind = "configuration"
	KindClosed        Kind = "closed"
)

// Error is an overlay error with its kind and the operation that produced it
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrTransport     = &Error{Kind: KindTransport}
	ErrDecode        = &Error{Kind: KindDecode}
	ErrProtocol      = &Error{Kind: KindProtocol}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrUnreachable   = &Error{Kind: KindUnreachable}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrClosed        = &Error{Kind: KindClosed}
)

// New creates an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an existing error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err == nil {
		msg = string(e.Kind)
	}
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case e.Err != nil && msg != "":
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind, and on operation when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// levelFor maps a kind onto the log level it is reported at.
// Protocol violations are routine on an open UDP port.
func levelFor(kind Kind) zapcore.Level {
	switch kind {
	case KindProtocol:
		return zapcore.DebugLevel
	case KindTimeout, KindUnreachable:
		return zapcore.InfoLevel
	case KindDecode, KindClosed:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Log writes err at the level appropriate for its kind
func Log(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}
	kind := KindOf(err)
	fields = append(fields, zap.String("kind", string(kind)), zap.Error(err))
	if ce := logger.Check(levelFor(kind), msg); ce != nil {
		ce.Write(fields...)
	}
}

// SafeRecover provides safe panic recovery with logging
func SafeRecover(logger *zap.Logger, operation string) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)

		logger.Error("Panic recovered",
			zap.String("operation", operation),
			zap.Any("panic", r),
			zap.String("stack_trace", string(buf[:n])),
		)
	}
}
