// MemClient is an in-process Client fake used by every other package's
// tests, so a concurrent lock/queue/registry test suite can run without
// a live store ensemble. It layers ZooKeeper-style ephemeral/sequence
// nodes and a broadcast event stream over github.com/tidwall/buntdb, the
// same embedded-store-as-adapter shape the teacher's dbdriver/bunt.go
// uses (open a buntdb.DB, translate its errors, key by a flattened
// path string).
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/clusterlib/clusterlib/cerrors"
)

type memNode struct {
	value     []byte
	version   int64
	ephemeral bool
	ctime     time.Time
	mtime     time.Time
}

// MemClient implements Client entirely in memory. A Go map holds every
// node (value, version, ephemeral flag) and serves all reads, including
// child enumeration, which scans the map for direct children; each
// node's value is also mirrored into buntdb under a flattened path key.
type MemClient struct {
	db *buntdb.DB

	mu       sync.Mutex
	nodes    map[string]*memNode
	seqCount map[string]int64 // next sequence number per parent path
	state    SessionState
	events   chan Event
	closed   bool
}

var _ Client = (*MemClient)(nil)

// NewMemClient opens an in-memory buntdb instance (":memory:") and
// seeds the root.
func NewMemClient() (*MemClient, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindSystemFailure, "", err)
	}
	c := &MemClient{
		db:       db,
		nodes:    make(map[string]*memNode),
		seqCount: make(map[string]int64),
		state:    StateConnected,
		events:   make(chan Event, 256),
	}
	c.nodes["/"] = &memNode{ctime: time.Now(), mtime: time.Now()}
	return c, nil
}

func (c *MemClient) Events() <-chan Event { return c.events }

func (c *MemClient) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MemClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateNoReconnect
	c.mu.Unlock()
	close(c.events)
	return c.db.Close()
}

func parent(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// fireLocked publishes a mutation on the single shared event stream.
// Unlike a real ensemble, MemClient does not track which paths
// actually have an outstanding watch and broadcasts every mutation;
// callers (the event pipeline, cached objects) already tolerate
// spurious watch fires by re-checking state before acting, so this is
// a safe, simpler over-approximation for a test fake.
func (c *MemClient) fireLocked(path string, et EventType) {
	select {
	case c.events <- Event{Type: et, Path: path}:
	default:
	}
}

func (c *MemClient) CreateNode(path string, value []byte, flags CreateFlags) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	createdPath := path
	if flags&FlagSequence != 0 {
		c.seqCount[parent(path)]++
		seq := c.seqCount[parent(path)]
		createdPath = fmt.Sprintf("%s%010d", path, seq)
	}
	if _, exists := c.nodes[createdPath]; exists {
		return "", cerrors.New(cerrors.KindNodeExists, "node exists").WithPath(createdPath)
	}
	now := time.Now()
	// Missing ancestors are created as empty persistent nodes, so a deep
	// repository path can be created in one call.
	for p := parent(createdPath); p != "/"; p = parent(p) {
		if _, ok := c.nodes[p]; ok {
			break
		}
		c.nodes[p] = &memNode{ctime: now, mtime: now}
	}
	c.nodes[createdPath] = &memNode{
		value:     append([]byte(nil), value...),
		version:   0,
		ephemeral: flags&FlagEphemeral != 0,
		ctime:     now,
		mtime:     now,
	}
	c.bunt().Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(bkey(createdPath), string(value), nil)
		return err
	})
	c.fireLocked(parent(createdPath), EventNodeChildrenChanged)
	return createdPath, nil
}

func (c *MemClient) bunt() *buntdb.DB { return c.db }

func bkey(path string) string { return "n" + path }

func (c *MemClient) CreateSequence(path string, value []byte, flags CreateFlags) (int64, string, error) {
	created, err := c.CreateNode(path, value, flags|FlagSequence)
	if err != nil {
		return 0, "", err
	}
	seq, err := ParseSequence(created)
	if err != nil {
		return 0, created, err
	}
	return seq, created, nil
}

func (c *MemClient) deleteOneLocked(path string, expectedVersion int64) error {
	n, ok := c.nodes[path]
	if !ok {
		return cerrors.New(cerrors.KindNoNode, "no such node").WithPath(path)
	}
	if expectedVersion != VersionAny && expectedVersion != n.version {
		return cerrors.PublishVersion(path)
	}
	delete(c.nodes, path)
	c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(bkey(path))
		return err
	})
	c.fireLocked(path, EventNodeDeleted)
	c.fireLocked(parent(path), EventNodeChildrenChanged)
	return nil
}

func (c *MemClient) DeleteNode(path string, recursive bool, expectedVersion int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if recursive {
		prefix := path + "/"
		var children []string
		for p := range c.nodes {
			if strings.HasPrefix(p, prefix) {
				children = append(children, p)
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(children)))
		for _, child := range children {
			if err := c.deleteOneLocked(child, VersionAny); err != nil && !cerrors.IsNoNode(err) {
				return err
			}
		}
	}
	return c.deleteOneLocked(path, expectedVersion)
}

func (c *MemClient) SetNodeData(path string, value []byte, expectedVersion int64) (*Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[path]
	if !ok {
		return nil, cerrors.New(cerrors.KindNoNode, "no such node").WithPath(path)
	}
	if expectedVersion != VersionAny && expectedVersion != n.version {
		return nil, cerrors.PublishVersion(path)
	}
	n.value = append([]byte(nil), value...)
	n.version++
	n.mtime = time.Now()
	c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(bkey(path), string(value), nil)
		return err
	})
	c.fireLocked(path, EventNodeDataChanged)
	return &Stat{Version: n.version, Ctime: n.ctime, Mtime: n.mtime}, nil
}

// GetNodeData ignores watch: every mutation already broadcasts on the
// shared event stream (see fireLocked), so there is nothing additional
// to arm here.
func (c *MemClient) GetNodeData(path string, watch WatchMode) ([]byte, *Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[path]
	if !ok {
		return nil, nil, cerrors.New(cerrors.KindNoNode, "no such node").WithPath(path)
	}
	return append([]byte(nil), n.value...), &Stat{Version: n.version, Ctime: n.ctime, Mtime: n.mtime}, nil
}

func (c *MemClient) NodeExists(path string, watch WatchMode) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.nodes[path]
	return ok, nil
}

func (c *MemClient) GetNodeChildren(path string, watch WatchMode) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.nodes[path]; !ok {
		return nil, cerrors.New(cerrors.KindNoNode, "no such node").WithPath(path)
	}
	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	for p := range c.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if !strings.Contains(rest, "/") && rest != "" {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *MemClient) Sync(path string, cb func(error)) {
	go cb(nil)
}

// DropEphemerals removes every ephemeral node this fake "session"
// owns; exposed for tests that simulate a client disconnecting.
func (c *MemClient) DropEphemerals() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, n := range c.nodes {
		if n.ephemeral {
			delete(c.nodes, p)
			c.fireLocked(p, EventNodeDeleted)
		}
	}
}
