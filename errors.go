package iec104

import "fmt"

// Code discriminates the error taxonomy of the client: every error that can
// surface from the codec, transport, engine or session layers carries one of
// these, so callers can errors.Is against a sentinel instead of matching on
// an error string.
type Code int

const (
	// Transport
	CodeConnectTimeout Code = iota + 1
	CodeConnectRefused
	CodeDisconnected
	CodeWriteError
	CodeReadError
	CodeReadTimeout

	// Framing
	CodeBadStartByte
	CodeBadLength
	CodeTruncated
	CodeUnknownFormat
	CodeMalformedSFrame
	CodeUnknownUFunction

	// ASDU
	CodeUnsupportedType
	CodeBadCOT
	CodeBadCommonAddress
	CodeBadIOA
	CodeBadElementCount
	CodePartialInfoObject
	CodeValueTypeMismatch

	// Engine
	CodeNotActive
	CodeWindowFull
	CodeSequenceError
	CodeT1Timeout
	CodeUnexpectedUFrame

	// API
	CodeInvalidAddress
	CodeTagNotFound
	CodeTagReadOnly
	CodeNoSession
	CodeStale
	CodeCommandRejected
)

var codeNames = map[Code]string{
	CodeConnectTimeout:    "ConnectTimeout",
	CodeConnectRefused:    "ConnectRefused",
	CodeDisconnected:      "Disconnected",
	CodeWriteError:        "WriteError",
	CodeReadError:         "ReadError",
	CodeReadTimeout:       "ReadTimeout",
	CodeBadStartByte:      "BadStartByte",
	CodeBadLength:         "BadLength",
	CodeTruncated:         "Truncated",
	CodeUnknownFormat:     "UnknownFormat",
	CodeMalformedSFrame:   "MalformedSFrame",
	CodeUnknownUFunction:  "UnknownUFunction",
	CodeUnsupportedType:   "UnsupportedType",
	CodeBadCOT:            "BadCOT",
	CodeBadCommonAddress:  "BadCommonAddress",
	CodeBadIOA:            "BadIOA",
	CodeBadElementCount:   "BadElementCount",
	CodePartialInfoObject: "PartialInfoObject",
	CodeValueTypeMismatch: "ValueTypeMismatch",
	CodeNotActive:         "NotActive",
	CodeWindowFull:        "WindowFull",
	CodeSequenceError:     "SequenceError",
	CodeT1Timeout:         "T1Timeout",
	CodeUnexpectedUFrame:  "UnexpectedUFrame",
	CodeInvalidAddress:    "InvalidAddress",
	CodeTagNotFound:       "TagNotFound",
	CodeTagReadOnly:       "TagReadOnly",
	CodeNoSession:         "NoSession",
	CodeStale:             "Stale",
	CodeCommandRejected:   "CommandRejected",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the concrete error type used throughout the client. Detail is a
// free-form human string; Code is the stable discriminant callers match on.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is makes Error participate in errors.Is comparisons keyed by Code, so
// errors.Is(err, iec104.ErrWindowFull) works even though each instance
// carries a distinct Detail string.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons. Instances returned by the library
// carry their own Detail but compare equal to these via Is.
var (
	ErrConnectTimeout    = &Error{Code: CodeConnectTimeout}
	ErrConnectRefused    = &Error{Code: CodeConnectRefused}
	ErrDisconnected      = &Error{Code: CodeDisconnected}
	ErrWriteError        = &Error{Code: CodeWriteError}
	ErrReadError         = &Error{Code: CodeReadError}
	ErrReadTimeout       = &Error{Code: CodeReadTimeout}
	ErrBadStartByte      = &Error{Code: CodeBadStartByte}
	ErrBadLength         = &Error{Code: CodeBadLength}
	ErrTruncated         = &Error{Code: CodeTruncated}
	ErrUnknownFormat     = &Error{Code: CodeUnknownFormat}
	ErrMalformedSFrame   = &Error{Code: CodeMalformedSFrame}
	ErrUnknownUFunction  = &Error{Code: CodeUnknownUFunction}
	ErrUnsupportedType   = &Error{Code: CodeUnsupportedType}
	ErrBadCOT            = &Error{Code: CodeBadCOT}
	ErrBadCommonAddress  = &Error{Code: CodeBadCommonAddress}
	ErrBadIOA            = &Error{Code: CodeBadIOA}
	ErrBadElementCount   = &Error{Code: CodeBadElementCount}
	ErrValueTypeMismatch = &Error{Code: CodeValueTypeMismatch}
	ErrNotActive         = &Error{Code: CodeNotActive}
	ErrWindowFull        = &Error{Code: CodeWindowFull}
	ErrSequenceError     = &Error{Code: CodeSequenceError}
	ErrT1Timeout         = &Error{Code: CodeT1Timeout}
	ErrUnexpectedUFrame  = &Error{Code: CodeUnexpectedUFrame}
	ErrInvalidAddress    = &Error{Code: CodeInvalidAddress}
	ErrTagNotFound       = &Error{Code: CodeTagNotFound}
	ErrTagReadOnly       = &Error{Code: CodeTagReadOnly}
	ErrNoSession         = &Error{Code: CodeNoSession}
	ErrStale             = &Error{Code: CodeStale}
	ErrCommandRejected   = &Error{Code: CodeCommandRejected}
)

// IsFatal reports whether err carries one of the codes the propagation policy
// makes fatal to a session: SequenceError, T1Timeout and Disconnected. The
// engine also disconnects when Transport.RecvFrame fails with a read error or
// a bad start byte, since the byte stream can no longer be framed; other
// framing and ASDU errors drop the offending frame and leave the session up.
func IsFatal(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	switch e.Code {
	case CodeSequenceError, CodeT1Timeout, CodeDisconnected:
		return true
	default:
		return false
	}
}

// errSingleCmdTerm and errDoubleCmdTerm preserve the teacher's narrower
// predicate-function convention for the two command-termination signals
// that callers most often special-case in a select-loop. CommandTermination
// in session.go is what actually produces them from a received ASDU.
type errSingleCmdTerm struct{}

func (e errSingleCmdTerm) Error() string { return "termination of single command" }

// IsErrSingleCmdTerm reports whether err signals completion of a
// single-command select/execute sequence.
func IsErrSingleCmdTerm(err error) bool {
	_, ok := err.(errSingleCmdTerm)
	return ok
}

type errDoubleCmdTerm struct{}

func (e errDoubleCmdTerm) Error() string { return "termination of double command" }

// IsErrDoubleCmdTerm reports whether err signals completion of a
// double-command select/execute sequence.
func IsErrDoubleCmdTerm(err error) bool {
	_, ok := err.(errDoubleCmdTerm)
	return ok
}
