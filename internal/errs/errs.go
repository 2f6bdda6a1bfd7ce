// Copyright Project Flowplane Authors
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

// Package errs defines the error taxonomy shared by the repository, the
// services and the API boundaries. Every error that crosses a package
// boundary is either one of these kinds or wraps one.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary mapping.
type Kind int

const (
	// KindInternal is the zero kind, an unexpected invariant violation.
	KindInternal Kind = iota
	// KindValidation rejects malformed or semantically invalid input.
	KindValidation
	// KindNotFound reports a missing entity.
	KindNotFound
	// KindConflict reports duplicate identity or a concurrency conflict.
	KindConflict
	// KindInUse reports deletion blocked by referencing resources.
	KindInUse
	// KindForbidden reports an authenticated caller without scope.
	KindForbidden
	// KindUnauthenticated reports a missing or invalid credential.
	KindUnauthenticated
	// KindTimeout reports an exceeded deadline.
	KindTimeout
	// KindDependencyUnavailable reports an unreachable backing dependency.
	KindDependencyUnavailable
)

// String returns the wire name of the kind, used as the "code" field of
// API error envelopes.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInUse:
		return "in_use"
	case KindForbidden:
		return "forbidden"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindTimeout:
		return "timeout"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "internal"
	}
}

// Error is a classified error. Details carries optional structured context
// that boundaries may surface to callers, for example the referents that
// block a delete.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// WithDetail returns e with the given detail attached.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// WithCause returns e wrapping the given cause.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// NotFound returns a KindNotFound error naming the entity and its key.
func NotFound(entity, key string) *Error {
	return New(KindNotFound, "%s %q not found", entity, key)
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// InUse returns a KindInUse error listing the referents that block the
// operation.
func InUse(message string, referents []string) *Error {
	e := New(KindInUse, "%s", message)
	if len(referents) > 0 {
		e = e.WithDetail("referents", referents)
	}
	return e
}

// Forbidden returns a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

// Unauthenticated returns a KindUnauthenticated error.
func Unauthenticated(format string, args ...any) *Error {
	return New(KindUnauthenticated, format, args...)
}

// Timeout returns a KindTimeout error.
func Timeout(format string, args ...any) *Error {
	return New(KindTimeout, format, args...)
}

// DependencyUnavailable returns a KindDependencyUnavailable error.
func DependencyUnavailable(format string, args ...any) *Error {
	return New(KindDependencyUnavailable, format, args...)
}

// Internal returns a KindInternal error wrapping err.
func Internal(err error, format string, args ...any) *Error {
	return New(KindInternal, format, args...).WithCause(err)
}

// KindOf extracts the kind from err, unwrapping as needed. Unclassified
// errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailsOf returns the structured details of err, or nil.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
