// Copyright 2025 Eric G. Suchanek
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package perr defines the runtime-wide error taxonomy.
//
// Every user-visible failure is categorized by a stable Kind so that
// log scraping and tests can match on the category marker rather than
// on free-form message text.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies an error. The string values are stable; they appear
// verbatim as the category marker prefix of user-visible messages.
type Kind string

const (
	KindInvalidInput Kind = "INVALID_INPUT"
	KindNotFound     Kind = "NOT_FOUND"
	KindDuplicate    Kind = "DUPLICATE"
	KindTransient    Kind = "TRANSIENT"
	KindExternal     Kind = "EXTERNAL"
	KindConsistency  Kind = "CONSISTENCY"
	KindFatal        Kind = "FATAL"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] [%s:%s] %s: %v", e.Kind, e.Component, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] [%s:%s] %s", e.Kind, e.Component, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a wrapped cause.
func New(kind Kind, component, op, message string) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, component, op, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of err, or the empty Kind when err is not a
// taxonomy error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a lookup miss. Lookup misses are
// non-fatal by contract.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsDuplicate reports whether err is a dedup rejection.
func IsDuplicate(err error) bool { return Is(err, KindDuplicate) }

// IsTransient reports whether err is retryable (timeouts, 5xx, busy).
func IsTransient(err error) bool { return Is(err, KindTransient) }
