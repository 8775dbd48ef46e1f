// Package cerrors defines the typed error taxonomy shared by every
// clusterlib package. Errors are small structs rather than sentinel
// values so callers can carry context (path, version, owner) without
// string-matching on Error().
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package cerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy from the coordination-substrate
// specification. It is exported so callers can switch on it without a
// type assertion per error struct.
type Kind int

const (
	KindUnknown Kind = iota
	KindDisconnected
	KindRepositoryConnection
	KindInvalidArguments
	KindInvalidMethod
	KindObjectRemoved
	KindPublishVersion
	KindRepositoryInternals
	KindInconsistentInternalState
	KindSystemFailure
	KindJSONRPCInvocation

	// Store-adapter-level kinds (spec §4.1) — lower-level than the
	// component taxonomy above; store.Client callers translate these
	// into the §7 kinds that make sense for their layer (e.g. a store
	// KindNoNode during a lookup usually becomes a not-found result,
	// not an error, while one during a lock release is tolerated).
	KindNoNode
	KindNodeExists
	KindNoAuth
	KindInvalidState
	KindStoreUnknown
)

func (k Kind) String() string {
	switch k {
	case KindDisconnected:
		return "Disconnected"
	case KindRepositoryConnection:
		return "RepositoryConnectionFailure"
	case KindInvalidArguments:
		return "InvalidArguments"
	case KindInvalidMethod:
		return "InvalidMethod"
	case KindObjectRemoved:
		return "ObjectRemoved"
	case KindPublishVersion:
		return "PublishVersion"
	case KindRepositoryInternals:
		return "RepositoryInternalsFailure"
	case KindInconsistentInternalState:
		return "InconsistentInternalState"
	case KindSystemFailure:
		return "SystemFailure"
	case KindJSONRPCInvocation:
		return "JSONRPCInvocation"
	case KindNoNode:
		return "NoNode"
	case KindNodeExists:
		return "NodeExists"
	case KindNoAuth:
		return "NoAuth"
	case KindInvalidState:
		return "InvalidState"
	case KindStoreUnknown:
		return "StoreUnknown"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried by every clusterlib API.
type Error struct {
	Kind    Kind
	Path    string // repository path the error concerns, if any
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s [%s]", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithPath returns a copy of e annotated with path, for constructors
// built without a path up front (e.g. store-adapter error translation).
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// Is supports errors.Is(err, cerrors.Disconnected) style checks against
// a bare Kind sentinel constructed with New(kind, "", nil).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and path to a lower-layer error, keeping the
// original as Cause wrapped with github.com/pkg/errors.WithStack, so
// formatting the Cause with %+v prints the stack recorded at this call.
func Wrap(kind Kind, path string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Message: cause.Error(), Cause: errors.WithStack(cause)}
}

func WrapMsg(kind Kind, path, msg string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Message: msg, Cause: errors.WithStack(cause)}
}

// Convenience constructors mirroring spec §7's named kinds.

func Disconnected(msg string) *Error { return New(KindDisconnected, msg) }

func RepositoryConnection(msg string) *Error { return New(KindRepositoryConnection, msg) }

func InvalidArguments(format string, args ...interface{}) *Error {
	return Newf(KindInvalidArguments, format, args...)
}

func InvalidMethod(format string, args ...interface{}) *Error {
	return Newf(KindInvalidMethod, format, args...)
}

func ObjectRemoved(path string) *Error {
	return &Error{Kind: KindObjectRemoved, Path: path, Message: "notifyable is removed"}
}

func PublishVersion(path string) *Error {
	return &Error{Kind: KindPublishVersion, Path: path, Message: "conditional write lost to a concurrent writer"}
}

func RepositoryInternals(format string, args ...interface{}) *Error {
	return Newf(KindRepositoryInternals, format, args...)
}

func InconsistentInternalState(format string, args ...interface{}) *Error {
	return Newf(KindInconsistentInternalState, format, args...)
}

func SystemFailure(format string, args ...interface{}) *Error {
	return Newf(KindSystemFailure, format, args...)
}

func JSONRPCInvocation(msg string) *Error {
	return New(KindJSONRPCInvocation, msg)
}

// IsNoNode reports whether err is (or wraps) a store KindNoNode error.
func IsNoNode(err error) bool { return Is(err, KindNoNode) }

// Is reports whether err (possibly wrapped) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
