/*
 * Copyright 2026 Amazon.com, Inc. or its affiliates. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"). You
 * may not use this file except in compliance with the License. A copy of
 * the License is located at
 *
 * 	http://aws.amazon.com/apache2.0/
 *
 * or in the "license" file accompanying this file. This file is
 * distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF
 * ANY KIND, either express or implied. See the License for the specific
 * language governing permissions and limitations under the License.
 */

package copier

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a copy failure.
type ErrorKind int

const (
	UnknownError ErrorKind = iota
	// ConfigError is a malformed image reference or run option. It aborts the
	// run before any job starts.
	ConfigError
	// EnvironmentError means no transfer backend is usable on this host.
	EnvironmentError
	AuthError
	ValidationError
	TransferError
	TimeoutError
	VerificationError
	// CancelledError marks jobs stopped by fail-fast or by the caller.
	CancelledError
)

var kindNames = map[ErrorKind]string{
	UnknownError:      "UnknownError",
	ConfigError:       "ConfigError",
	EnvironmentError:  "EnvironmentError",
	AuthError:         "AuthError",
	ValidationError:   "ValidationError",
	TransferError:     "TransferError",
	TimeoutError:      "TimeoutError",
	VerificationError: "VerificationError",
	CancelledError:    "CancelledError",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Reason refines an ErrorKind where the exit code depends on it.
type Reason int

const (
	NoReason Reason = iota
	// Permission is an explicit access denial from AWS.
	Permission
	SourceNotFound
	TargetRepository
	Mismatch
	Missing
)

var reasonNames = map[Reason]string{
	NoReason:         "",
	Permission:       "permission",
	SourceNotFound:   "source-not-found",
	TargetRepository: "target-repository",
	Mismatch:         "mismatch",
	Missing:          "missing",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Error is the error type returned by every stage of a copy.
type Error struct {
	Kind      ErrorKind
	Reason    Reason
	Retryable bool
	Err       error
}

var _ error = (*Error)(nil)

// NewError wraps err with kind. Retryable takes the default for the kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Retryable: retryableByDefault(kind), Err: err}
}

// Errorf is NewError with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != NoReason {
		msg += "(" + e.Reason.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithReason returns a copy of e carrying reason.
func (e *Error) WithReason(reason Reason) *Error {
	c := *e
	c.Reason = reason
	return &c
}

// WithRetryable returns a copy of e with the retry flag overridden.
func (e *Error) WithRetryable(retryable bool) *Error {
	c := *e
	c.Retryable = retryable
	return &c
}

// Message is the underlying message without the kind prefix.
func (e *Error) Message() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func retryableByDefault(kind ErrorKind) bool {
	switch kind {
	case ValidationError, TransferError, TimeoutError, VerificationError:
		return true
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnknownError
}

// IsRetryable reports whether the scheduler may retry after err.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// ensureKind types an untyped collaborator error with the kind of the stage
// that produced it.
func ensureKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(kind, err)
}

// Process exit codes.
const (
	ExitOK               = 0
	ExitGeneral          = 1
	ExitConfig           = 2
	ExitAuth             = 3
	ExitPermission       = 4
	ExitNetwork          = 5
	ExitSourceNotFound   = 6
	ExitTargetRepository = 7
)

// ExitCodeOf maps an error to the process exit code. A nil error is ExitOK.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if !errors.As(err, &e) {
		return ExitGeneral
	}
	return exitCode(e.Kind, e.Reason)
}

func exitCode(kind ErrorKind, reason Reason) int {
	switch reason {
	case Permission:
		return ExitPermission
	case SourceNotFound:
		return ExitSourceNotFound
	case TargetRepository:
		return ExitTargetRepository
	}
	switch kind {
	case ConfigError:
		return ExitConfig
	case AuthError:
		return ExitAuth
	case TransferError, TimeoutError:
		return ExitNetwork
	}
	return ExitGeneral
}
