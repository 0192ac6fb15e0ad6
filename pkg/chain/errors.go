package chain

import (
	"errors"
	"fmt"
	"regexp"
)

type ErrorKind string

const (
	ErrNotConnected                ErrorKind = "NotConnected"
	ErrChainConnectFailed          ErrorKind = "ChainConnectFailed"
	ErrInvalidActionShape          ErrorKind = "InvalidActionShape"
	ErrInvalidOptions              ErrorKind = "InvalidOptions"
	ErrMutationAfterSignature      ErrorKind = "MutationAfterSignature"
	ErrNotPrepared                 ErrorKind = "NotPrepared"
	ErrNotValidated                ErrorKind = "NotValidated"
	ErrMissingRequiredSignature    ErrorKind = "MissingRequiredSignature"
	ErrInvalidSignature            ErrorKind = "InvalidSignature"
	ErrMultisigFromMismatch        ErrorKind = "MultisigFromMismatch"
	ErrAccountNotFound             ErrorKind = "AccountNotFound"
	ErrAccountAlreadyExists        ErrorKind = "AccountAlreadyExists"
	ErrMaxAccountNameAttempts      ErrorKind = "MaxAccountNameAttempts"
	ErrBlockDoesNotExist           ErrorKind = "BlockDoesNotExist"
	ErrMaxBlockReadAttemptsTimeout ErrorKind = "MaxBlockReadAttemptsTimeout"
	ErrConfirmTransactionTimeout   ErrorKind = "ConfirmTransactionTimeout"
	ErrTxExpired                   ErrorKind = "TxExpired"
	ErrMissingAuthorization        ErrorKind = "MissingAuthorization"
	ErrInsufficientResources       ErrorKind = "InsufficientResources"
	ErrDuplicateTransaction        ErrorKind = "DuplicateTransaction"
	ErrUnknown                     ErrorKind = "UnknownError"
)

// Error is the only error type surfaced by the chain packages. ConfirmTransactionTimeout
// and MaxBlockReadAttemptsTimeout do not mean the transaction failed: it may still
// be included later.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or ErrUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

type ErrorPattern struct {
	Kind    ErrorKind
	Pattern *regexp.Regexp
}

// ErrorMapper maps chain native error text onto ErrorKind. Patterns are tried in
// order and the first match wins; a catch-all is always appended.
type ErrorMapper struct {
	patterns []ErrorPattern
}

var catchAll = ErrorPattern{Kind: ErrUnknown, Pattern: regexp.MustCompile(`.*`)}

func NewErrorMapper(patterns ...ErrorPattern) *ErrorMapper {
	p := make([]ErrorPattern, 0, len(patterns)+1)
	p = append(p, patterns...)
	p = append(p, catchAll)
	return &ErrorMapper{patterns: p}
}

// Pattern is a convenience for building mapper tables.
func Pattern(kind ErrorKind, expr string) ErrorPattern {
	return ErrorPattern{Kind: kind, Pattern: regexp.MustCompile(expr)}
}

func (m *ErrorMapper) Kind(text string) ErrorKind {
	for _, p := range m.patterns {
		if p.Pattern.MatchString(text) {
			return p.Kind
		}
	}
	return ErrUnknown
}

// Map converts err into an *Error. Errors that are already mapped pass through.
func (m *ErrorMapper) Map(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: m.Kind(err.Error()), Message: "chain request failed", Cause: err}
}
