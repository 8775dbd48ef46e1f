// Package queue implements the distributed FIFO queue (spec §4.7,
// component C7): sequence-node children under
// "<queue>/_queueParent/_queueElementPrefix<seq>", blocking/timed take,
// and the watch-plus-signal-map rendezvous pattern shared with [[lock]].
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package queue

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

const (
	queueParentToken = "_queueParent"
	elementPrefix    = "_queueElementPrefix"
)

// Queue is a handle on "<notifyableKey>/_queueParent".
type Queue struct {
	st      store.Client
	signals *signalmap.Map
	dir     string
}

func New(st store.Client, signals *signalmap.Map, notifyableKey string) *Queue {
	return &Queue{st: st, signals: signals, dir: notifyableKey + "/" + queueParentToken}
}

// IsElementsDirPath reports whether path is a queue's own element
// parent directory ("<notifyableKey>/_queueParent"), the exact path
// TakeWaitMsecs arms a children watch on. The event pipeline's
// QUEUE_CHILD classification (spec §4.2, §4.7) uses this to recognize
// a Put's children-changed event and signal the blocked waiter instead
// of dropping the path as unclassified.
func IsElementsDirPath(path string) bool {
	return strings.HasSuffix(path, "/"+queueParentToken)
}

func (q *Queue) ensureDir() error {
	if _, err := q.st.CreateNode(q.dir, nil, store.FlagNone); err != nil {
		if cerrors.Is(err, cerrors.KindNodeExists) {
			return nil
		}
		return cerrors.Wrap(cerrors.KindRepositoryInternals, q.dir, err)
	}
	return nil
}

// Put creates a sequence child carrying element and returns its
// store-assigned id (spec §4.7 "put(element) -> id").
func (q *Queue) Put(element []byte) (int64, error) {
	if err := q.ensureDir(); err != nil {
		return 0, err
	}
	seq, _, err := q.st.CreateSequence(q.dir+"/"+elementPrefix, element, store.FlagNone)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.KindRepositoryInternals, q.dir, err)
	}
	return seq, nil
}

// elementPath reconstructs the child path the store assigned to id.
// Both the ZK adapter and the in-memory store zero-pad a sequence
// suffix to 10 digits (ZooKeeper's own convention); using
// strconv.FormatInt here instead silently produces a path that never
// exists (store/memstore.go's "%s%010d" / real ZK's identical padding).
func (q *Queue) elementPath(id int64) string {
	return q.dir + "/" + elementPrefix + fmt.Sprintf("%010d", id)
}

// sortedChildren lists queue children parsed and ordered by id
// ascending (FIFO order).
func (q *Queue) sortedChildren() ([]int64, error) {
	names, err := q.st.GetNodeChildren(q.dir, store.NoWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return nil, nil
		}
		return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, q.dir, err)
	}
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		id, perr := store.ParseSequence(n)
		if perr != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Take removes and returns the lowest-id element, blocking forever
// until one arrives (spec §4.7 "take()").
func (q *Queue) Take() ([]byte, error) {
	_, elem, err := q.TakeWaitMsecs(-1)
	return elem, err
}

// TakeWaitMsecs implements spec §4.7's takeWaitMsecs: loop listing
// children, read-then-delete the lowest, retry on a lost race, and
// block on a child-change watch plus signal-map waiter when empty.
func (q *Queue) TakeWaitMsecs(timeout time.Duration) (bool, []byte, error) {
	if err := q.ensureDir(); err != nil {
		return false, nil, err
	}
	deadline := time.Now().Add(timeout)
	for {
		ids, err := q.sortedChildren()
		if err != nil {
			return false, nil, err
		}
		for _, id := range ids {
			path := q.elementPath(id)
			value, _, gerr := q.st.GetNodeData(path, store.NoWatch)
			if gerr != nil {
				if cerrors.IsNoNode(gerr) {
					continue // lost the race to another consumer, try the next id
				}
				return false, nil, cerrors.Wrap(cerrors.KindRepositoryInternals, path, gerr)
			}
			if derr := q.st.DeleteNode(path, false, store.VersionAny); derr != nil {
				if cerrors.IsNoNode(derr) {
					continue
				}
				return false, nil, cerrors.Wrap(cerrors.KindRepositoryInternals, path, derr)
			}
			return true, value, nil
		}

		remaining := timeRemaining(timeout, deadline)
		if timeout == 0 {
			return false, nil, nil
		}

		q.signals.AddRef(q.dir)
		if _, err := q.st.GetNodeChildren(q.dir, store.WithWatch); err != nil && !cerrors.IsNoNode(err) {
			q.signals.Release(q.dir)
			return false, nil, cerrors.Wrap(cerrors.KindRepositoryInternals, q.dir, err)
		}
		ok := q.signals.WaitUsecs(q.dir, remaining)
		q.signals.Release(q.dir)
		if !ok && timeout >= 0 && time.Now().After(deadline) {
			return false, nil, nil
		}
	}
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

// Front peeks the lowest-id element without removing it (spec §4.7
// "front(&out) -> bool"); may race with a concurrent Take.
func (q *Queue) Front() (bool, []byte, error) {
	ids, err := q.sortedChildren()
	if err != nil {
		return false, nil, err
	}
	if len(ids) == 0 {
		return false, nil, nil
	}
	value, _, err := q.st.GetNodeData(q.elementPath(ids[0]), store.NoWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return false, nil, nil
		}
		return false, nil, cerrors.Wrap(cerrors.KindRepositoryInternals, q.dir, err)
	}
	return true, value, nil
}

func (q *Queue) Size() (int, error) {
	ids, err := q.sortedChildren()
	return len(ids), err
}

func (q *Queue) Empty() (bool, error) {
	n, err := q.Size()
	return n == 0, err
}

// RemoveElement deletes a specific element by id, tolerating absence.
func (q *Queue) RemoveElement(id int64) error {
	if err := q.st.DeleteNode(q.elementPath(id), false, store.VersionAny); err != nil && !cerrors.IsNoNode(err) {
		return cerrors.Wrap(cerrors.KindRepositoryInternals, q.elementPath(id), err)
	}
	return nil
}

// Clear removes every element currently present.
func (q *Queue) Clear() error {
	ids, err := q.sortedChildren()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := q.RemoveElement(id); err != nil {
			return err
		}
	}
	return nil
}

// GetAllElements returns every element keyed by id. The store
// guarantees unique sequence numbers; the dedup check here is a safety
// net, not load-bearing (spec §9 open question).
func (q *Queue) GetAllElements() (map[int64][]byte, error) {
	ids, err := q.sortedChildren()
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]byte, len(ids))
	for _, id := range ids {
		if _, dup := out[id]; dup {
			panic(cerrors.InconsistentInternalState("duplicate queue sequence id %d under %s", id, q.dir))
		}
		value, _, gerr := q.st.GetNodeData(q.elementPath(id), store.NoWatch)
		if gerr != nil {
			if cerrors.IsNoNode(gerr) {
				continue
			}
			return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, q.dir, gerr)
		}
		out[id] = value
	}
	return out, nil
}
