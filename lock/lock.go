// Package lock implements the distributed shared/exclusive lock (spec
// §4.6, component C6): sequence+ephemeral bid nodes under
// "<notifyable>/_lockDir/<lockName>", FIFO fairness among competing
// bids, and re-entrant acquisition for a single owner identity.
//
// Grounded on _examples/original_source (the C++ distributedlock /
// distributedlockunlocker shape: create bid, list+filter children,
// wait on the next-lower bid's deletion) and, for the Go-side
// concurrency primitives, on [[signalmap]] (itself grounded on the
// teacher's cmn.DynSemaphore).
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

// Kind distinguishes SHARED from EXCLUSIVE bids (spec §3 "Lock record").
type Kind int

const (
	Shared Kind = iota
	Exclusive
)

// token is the bit-exact directory token spec §6 assigns each kind.
func (k Kind) token() string {
	if k == Exclusive {
		return "DIST_LOCK_EXCL"
	}
	return "DIST_LOCK_SHARED"
}

func (k Kind) String() string {
	if k == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

func kindFromToken(tok string) (Kind, bool) {
	switch tok {
	case "DIST_LOCK_EXCL":
		return Exclusive, true
	case "DIST_LOCK_SHARED":
		return Shared, true
	default:
		return 0, false
	}
}

const lockDirToken = "_lockDir"

// lockRootPath is "<notifyable>/_lockDir/<lockName>" (spec §4.6).
func lockRootPath(notifyableKey, lockName string) string {
	return notifyableKey + "/" + lockDirToken + "/" + lockName
}

// IsBidPath reports whether path is an individual lock bid node under
// "<notifyable>/_lockDir/<lockName>/<bidName>" — exactly the path
// AcquireWaitUsecs arms an exists-watch on for the next-lower bid. The
// event pipeline's PREC_LOCK_NODE_EXISTS classification (spec §4.2,
// §4.6) uses this to recognize the lower bid's deletion and signal the
// waiter instead of dropping the path as unclassified.
func IsBidPath(path string) bool {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return false
	}
	return parts[len(parts)-3] == lockDirToken
}

// NewOwnerID builds spec §6's "<hostname>.pid.<pid>.tid.<tid>" owner
// identity. Go goroutines have no OS thread identity to report, so the
// tid component is a random UUID minted on every call instead: two
// NewOwnerID calls never return the same id, while Lock handles given
// the same ownerID share one re-entrant identity.
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s.pid.%d.tid.%s", host, os.Getpid(), uuid.New().String())
}

// ParseBidName splits a lock-node child name "<ownerID> <kindToken>
// <seq>" back into its parts (spec §6: "joined by a single space
// character").
func ParseBidName(name string) (ownerID string, kind Kind, seq int64, err error) {
	fields := strings.Fields(name)
	if len(fields) != 3 {
		return "", 0, 0, cerrors.RepositoryInternals("malformed lock bid name %q", name)
	}
	kind, ok := kindFromToken(fields[1])
	if !ok {
		return "", 0, 0, cerrors.RepositoryInternals("unrecognized lock kind token in %q", name)
	}
	seq, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, 0, cerrors.RepositoryInternals("malformed sequence in bid name %q", name)
	}
	return fields[0], kind, seq, nil
}

// record is the in-process bookkeeping for one (owner, notifyable,
// lockName): spec §3's "Lock record", minus the owner-thread-identity
// dimension which collapses into the Lock handle itself here.
type record struct {
	kind        Kind
	createdPath string
	refCount    int
}

// Lock is one owner's handle on (notifyableKey, lockName). It is safe
// for concurrent use by goroutines that agree to share the same
// ownerID; spec §4.6's re-entrancy is keyed on that shared identity.
type Lock struct {
	st      store.Client
	signals *signalmap.Map
	ownerID string

	notifyableKey string
	lockName      string

	mu  sync.Mutex
	rec *record
}

// New returns a handle for ownerID over (notifyableKey, lockName). Pass
// the same ownerID across goroutines/calls that should be treated as
// the same re-entrant owner.
func New(st store.Client, signals *signalmap.Map, ownerID, notifyableKey, lockName string) *Lock {
	return &Lock{st: st, signals: signals, ownerID: ownerID, notifyableKey: notifyableKey, lockName: lockName}
}

// AcquireWaitUsecs implements spec §4.6's acquireWaitUsecs algorithm.
// timeout < 0 waits forever; timeout == 0 tries once.
func (l *Lock) AcquireWaitUsecs(timeout time.Duration, kind Kind) (bool, error) {
	l.mu.Lock()
	if l.rec != nil {
		if l.rec.kind != kind {
			l.mu.Unlock()
			return false, cerrors.InvalidMethod("lock %s already held as %s, cannot acquire as %s", l.lockName, l.rec.kind, kind)
		}
		l.rec.refCount++
		l.mu.Unlock()
		return true, nil
	}
	l.mu.Unlock()

	if err := l.ensureLockRoot(); err != nil {
		return false, err
	}

	root := lockRootPath(l.notifyableKey, l.lockName)
	bidBase := root + "/" + l.ownerID + " " + kind.token() + " "
	nowMsecs := []byte(strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10))
	ourSeq, createdPath, err := l.st.CreateSequence(bidBase, nowMsecs, store.FlagEphemeral)
	if err != nil {
		return false, cerrors.Wrap(cerrors.KindRepositoryInternals, bidBase, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		lowerBidPath, found, err := l.findLowerBid(root, kind, ourSeq)
		if err != nil {
			l.deleteBid(createdPath)
			return false, err
		}
		if !found {
			break
		}

		remaining := timeRemaining(timeout, deadline)

		l.signals.AddRef(lowerBidPath)
		exists, existsErr := l.st.NodeExists(lowerBidPath, store.WithWatch)
		if existsErr != nil && !cerrors.IsNoNode(existsErr) {
			l.signals.Release(lowerBidPath)
			l.deleteBid(createdPath)
			return false, cerrors.Wrap(cerrors.KindRepositoryInternals, lowerBidPath, existsErr)
		}
		if !exists {
			l.signals.Release(lowerBidPath)
			continue
		}

		ok := l.signals.WaitUsecs(lowerBidPath, remaining)
		l.signals.Release(lowerBidPath)
		if !ok && timeout >= 0 && time.Now().After(deadline) {
			l.deleteBid(createdPath)
			return false, nil
		}
	}

	l.st.Sync(root, func(error) {})

	l.mu.Lock()
	l.rec = &record{kind: kind, createdPath: createdPath, refCount: 1}
	l.mu.Unlock()
	return true, nil
}

func timeRemaining(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout < 0 {
		return -1
	}
	left := time.Until(deadline)
	if left < 0 {
		return 0
	}
	return left
}

func (l *Lock) ensureLockRoot() error {
	root := lockRootPath(l.notifyableKey, l.lockName)
	dir := l.notifyableKey + "/" + lockDirToken
	for _, p := range []string{dir, root} {
		if _, err := l.st.CreateNode(p, nil, store.FlagNone); err != nil {
			if cerrors.Is(err, cerrors.KindNodeExists) {
				continue
			}
			return cerrors.Wrap(cerrors.KindRepositoryInternals, p, err)
		}
	}
	return nil
}

// findLowerBid implements spec §4.6 steps 4-5: among bids that compete
// with kind (SHARED requesters ignore other SHARED bids; EXCLUSIVE
// requesters compete against everything), find the highest-numbered
// one strictly below ourSeq.
func (l *Lock) findLowerBid(root string, kind Kind, ourSeq int64) (string, bool, error) {
	children, err := l.st.GetNodeChildren(root, store.NoWatch)
	if err != nil {
		return "", false, cerrors.Wrap(cerrors.KindRepositoryInternals, root, err)
	}
	var bestSeq int64 = -1
	var bestName string
	for _, name := range children {
		_, bidKind, seq, perr := ParseBidName(name)
		if perr != nil {
			continue
		}
		if seq >= ourSeq {
			continue
		}
		if kind == Shared && bidKind == Shared {
			continue
		}
		if seq > bestSeq {
			bestSeq = seq
			bestName = name
		}
	}
	if bestSeq < 0 {
		return "", false, nil
	}
	return root + "/" + bestName, true, nil
}

func (l *Lock) deleteBid(path string) {
	_ = l.st.DeleteNode(path, false, store.VersionAny)
}

// Release implements spec §4.6's release: decrements the ref count,
// deleting the bid node only when it reaches zero.
func (l *Lock) Release() error {
	l.mu.Lock()
	if l.rec == nil {
		l.mu.Unlock()
		return cerrors.InvalidMethod("lock %s is not held", l.lockName)
	}
	l.rec.refCount--
	if l.rec.refCount > 0 {
		l.mu.Unlock()
		return nil
	}
	createdPath := l.rec.createdPath
	l.rec = nil
	l.mu.Unlock()

	if err := l.st.DeleteNode(createdPath, false, store.VersionAny); err != nil && !cerrors.IsNoNode(err) {
		return cerrors.Wrap(cerrors.KindRepositoryInternals, createdPath, err)
	}
	l.signals.Signal(createdPath)
	return nil
}

// HasLock reports whether this handle currently holds the lock.
func (l *Lock) HasLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec != nil
}

// Info is the snapshot spec §4.6's getInfo returns.
type Info struct {
	OwnerID     string
	Kind        Kind
	CreatedPath string
	RefCount    int
}

func (l *Lock) GetInfo() (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec == nil {
		return Info{}, false
	}
	return Info{OwnerID: l.ownerID, Kind: l.rec.kind, CreatedPath: l.rec.createdPath, RefCount: l.rec.refCount}, true
}

// GetLockBids enumerates outstanding bids for introspection (spec
// §4.6's getLockBids).
func (l *Lock) GetLockBids() ([]string, error) {
	root := lockRootPath(l.notifyableKey, l.lockName)
	children, err := l.st.GetNodeChildren(root, store.NoWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return nil, nil
		}
		return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, root, err)
	}
	return children, nil
}
