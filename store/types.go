// Package store wraps a ZooKeeper-style hierarchical key-value store
// behind a small adapter interface (spec §4.1, component C1). Every
// other clusterlib package talks only to this interface; it never
// imports a store client package directly.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package store

import "time"

// CreateFlags mirror the flag bits a ZooKeeper-style store attaches to
// a node at creation time.
type CreateFlags int

const (
	FlagNone      CreateFlags = 0
	FlagEphemeral CreateFlags = 1 << 0
	FlagSequence  CreateFlags = 1 << 1
)

// Stat is the subset of per-node metadata clusterlib relies on:
// the version used for optimistic-concurrency conditional writes.
type Stat struct {
	Version int64
	Ctime   time.Time
	Mtime   time.Time
}

// EventType distinguishes the store events the pipeline (C2) multiplexes.
type EventType int

const (
	EventNodeCreated EventType = iota
	EventNodeDeleted
	EventNodeDataChanged
	EventNodeChildrenChanged
	EventSession
	EventSync
)

// SessionState tracks the adapter's connection state machine (spec §4.1).
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateSessionExpired
	StateNoReconnect
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSessionExpired:
		return "SessionExpired"
	case StateNoReconnect:
		return "NoReconnect"
	default:
		return "Unknown"
	}
}

// Event is a single item on the adapter's event stream: either a watch
// firing for a path, or a session-state transition (Path == "").
type Event struct {
	Type  EventType
	Path  string
	State SessionState
	Err   error
}

// NoWatch/WithWatch select whether Get/Exists/Children arm a one-shot
// watch on the path, per spec §4.1 ("a watch ... fires exactly once").
type WatchMode bool

const (
	NoWatch   WatchMode = false
	WithWatch WatchMode = true
)

// VersionAny means "unconditional write" (expectedVersion == -1 in the
// wire protocol spec §4.4 describes).
const VersionAny int64 = -1

// Client is the store adapter contract (spec §4.1). Implementations:
// zkClient (production, backed by github.com/go-zookeeper/zk) and
// MemClient (in-process fake backed by github.com/tidwall/buntdb, used
// by every other package's tests).
type Client interface {
	// CreateNode creates path with value under flags. Returns the
	// created path (which differs from path when FlagSequence is set).
	CreateNode(path string, value []byte, flags CreateFlags) (createdPath string, err error)

	// CreateSequence is CreateNode with FlagSequence forced on; seq is
	// the store-assigned monotonically increasing integer suffix.
	CreateSequence(path string, value []byte, flags CreateFlags) (seq int64, createdPath string, err error)

	DeleteNode(path string, recursive bool, expectedVersion int64) error

	SetNodeData(path string, value []byte, expectedVersion int64) (*Stat, error)

	GetNodeData(path string, watch WatchMode) (value []byte, stat *Stat, err error)

	NodeExists(path string, watch WatchMode) (bool, error)

	GetNodeChildren(path string, watch WatchMode) ([]string, error)

	// Sync guarantees that, once cb fires, any store-acknowledged write
	// prior to the call is visible to this session's subsequent reads.
	Sync(path string, cb func(error))

	// Events returns the single multiplexed event stream for this
	// session (spec §4.1/§4.2).
	Events() <-chan Event

	State() SessionState

	Close() error
}
