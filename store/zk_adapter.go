// zkClient implements Client over github.com/go-zookeeper/zk, the real
// store collaborator spec.md assumes available. Its event/flag/session
// shape is grounded on the ensemble-protocol semantics that
// _examples/other_examples/...gozk.go documents for a cgo ZooKeeper
// binding (ephemeral/sequence create flags, a single multiplexed event
// channel, a STATE_* session machine) — translated to the pure-Go
// ecosystem client instead of a cgo dependency.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package store

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/clusterlib/clusterlib/cerrors"
)

const maxRetries = 3

type zkClient struct {
	conn *zk.Conn

	mu     sync.Mutex
	state  SessionState
	events chan Event
}

// Dial connects to the comma-described ensemble (spec §6's single
// required environment host list) with the given session timeout.
func Dial(hosts []string, sessionTimeout time.Duration) (Client, error) {
	conn, rawEvents, err := zk.Connect(hosts, sessionTimeout)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindRepositoryConnection, "", err)
	}
	c := &zkClient{
		conn:   conn,
		state:  StateConnecting,
		events: make(chan Event, 256),
	}
	go c.pump(rawEvents)
	return c, nil
}

// pump translates the raw zk.Event stream into clusterlib's Event
// shape and runs it through the same channel watches/syncs use, so
// ordering relative to prior callbacks is preserved (spec §4.1).
func (c *zkClient) pump(raw <-chan zk.Event) {
	for ev := range raw {
		c.mu.Lock()
		switch ev.State {
		case zk.StateConnected, zk.StateHasSession:
			c.state = StateConnected
		case zk.StateConnecting:
			c.state = StateConnecting
		case zk.StateDisconnected:
			if c.state != StateSessionExpired {
				c.state = StateDisconnected
			}
		case zk.StateExpired:
			c.state = StateSessionExpired
		}
		c.mu.Unlock()

		if ev.Type == zk.EventNotWatching {
			continue
		}
		if ev.Path == "" {
			c.events <- Event{Type: EventSession, State: c.State()}
			if ev.State == zk.StateExpired {
				glog.Errorf("session expired, shutting down adapter")
				close(c.events)
				return
			}
			continue
		}
		c.events <- storeEventFromZK(ev)
	}
}

func storeEventFromZK(ev zk.Event) Event {
	var t EventType
	switch ev.Type {
	case zk.EventNodeCreated:
		t = EventNodeCreated
	case zk.EventNodeDeleted:
		t = EventNodeDeleted
	case zk.EventNodeDataChanged:
		t = EventNodeDataChanged
	case zk.EventNodeChildrenChanged:
		t = EventNodeChildrenChanged
	}
	return Event{Type: t, Path: ev.Path}
}

func (c *zkClient) Events() <-chan Event { return c.events }

func (c *zkClient) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func toZKFlags(flags CreateFlags) int32 {
	var f int32
	if flags&FlagEphemeral != 0 {
		f |= zk.FlagEphemeral
	}
	if flags&FlagSequence != 0 {
		f |= zk.FlagSequence
	}
	return f
}

func (c *zkClient) retryable(op func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isTransient(err) || c.State() != StateConnecting {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isTransient(err error) bool {
	return errors.Is(err, zk.ErrConnectionClosed)
}

func (c *zkClient) CreateNode(path string, value []byte, flags CreateFlags) (string, error) {
	var created string
	err := c.retryable(func() error {
		var e error
		created, e = c.conn.Create(path, value, toZKFlags(flags), zk.WorldACL(zk.PermAll))
		return e
	})
	return created, wrapZKErr(err, path)
}

func (c *zkClient) CreateSequence(path string, value []byte, flags CreateFlags) (int64, string, error) {
	created, err := c.CreateNode(path, value, flags|FlagSequence)
	if err != nil {
		return 0, "", err
	}
	seq, err := ParseSequence(created)
	if err != nil {
		return 0, created, cerrors.RepositoryInternals("unparseable sequence node %q: %v", created, err)
	}
	return seq, created, nil
}

func (c *zkClient) DeleteNode(path string, recursive bool, expectedVersion int64) error {
	if recursive {
		children, err := c.GetNodeChildren(path, NoWatch)
		if err != nil {
			if isNoNode(err) {
				return nil
			}
			return err
		}
		for _, child := range children {
			if err := c.DeleteNode(path+"/"+child, true, VersionAny); err != nil {
				return err
			}
		}
	}
	err := c.retryable(func() error {
		return c.conn.Delete(path, int32(expectedVersion))
	})
	return wrapZKErr(err, path)
}

func (c *zkClient) SetNodeData(path string, value []byte, expectedVersion int64) (*Stat, error) {
	var st *zk.Stat
	err := c.retryable(func() error {
		var e error
		st, e = c.conn.Set(path, value, int32(expectedVersion))
		return e
	})
	if err != nil {
		return nil, wrapZKErr(err, path)
	}
	return statFromZK(st), nil
}

func (c *zkClient) GetNodeData(path string, watch WatchMode) ([]byte, *Stat, error) {
	var data []byte
	var st *zk.Stat
	err := c.retryable(func() error {
		var e error
		if watch {
			data, st, _, e = c.conn.GetW(path)
		} else {
			data, st, e = c.conn.Get(path)
		}
		return e
	})
	if err != nil {
		return nil, nil, wrapZKErr(err, path)
	}
	return data, statFromZK(st), nil
}

func (c *zkClient) NodeExists(path string, watch WatchMode) (bool, error) {
	var ok bool
	err := c.retryable(func() error {
		var e error
		if watch {
			ok, _, _, e = c.conn.ExistsW(path)
		} else {
			ok, _, e = c.conn.Exists(path)
		}
		return e
	})
	return ok, wrapZKErr(err, path)
}

func (c *zkClient) GetNodeChildren(path string, watch WatchMode) ([]string, error) {
	var names []string
	err := c.retryable(func() error {
		var e error
		if watch {
			names, _, _, e = c.conn.ChildrenW(path)
		} else {
			names, _, e = c.conn.Children(path)
		}
		return e
	})
	return names, wrapZKErr(err, path)
}

func (c *zkClient) Sync(path string, cb func(error)) {
	go func() {
		_, err := c.conn.Sync(path)
		cb(wrapZKErr(err, path))
	}()
}

func (c *zkClient) Close() error {
	c.conn.Close()
	return nil
}

func statFromZK(st *zk.Stat) *Stat {
	if st == nil {
		return nil
	}
	return &Stat{
		Version: int64(st.Version),
		Ctime:   time.Unix(0, st.Ctime*int64(time.Millisecond)),
		Mtime:   time.Unix(0, st.Mtime*int64(time.Millisecond)),
	}
}

func wrapZKErr(err error, path string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, zk.ErrNoNode):
		return cerrors.New(cerrors.KindNoNode, "no such node").WithPath(path)
	case errors.Is(err, zk.ErrNodeExists):
		return cerrors.New(cerrors.KindNodeExists, "node exists").WithPath(path)
	case errors.Is(err, zk.ErrBadVersion):
		return cerrors.PublishVersion(path)
	case errors.Is(err, zk.ErrNoAuth):
		return cerrors.New(cerrors.KindNoAuth, "not authorized").WithPath(path)
	case errors.Is(err, zk.ErrInvalidState), errors.Is(err, zk.ErrConnectionClosed):
		return cerrors.Wrap(cerrors.KindDisconnected, path, err)
	default:
		return cerrors.Wrap(cerrors.KindRepositoryInternals, path, err)
	}
}

func isNoNode(err error) bool {
	return cerrors.IsNoNode(err)
}

// ParseSequence extracts the store-assigned sequence suffix from a
// sequence node's created path, e.g. ".../lock-0000000042" -> 42.
// Grounded on spec §4.1's "deterministic monotonically increasing
// integer and a fixed separator used to parse name and sequence number".
func ParseSequence(createdPath string) (int64, error) {
	idx := strings.LastIndexAny(createdPath, "0123456789")
	if idx < 0 {
		return 0, cerrors.RepositoryInternals("no digits in sequence path %q", createdPath)
	}
	start := idx
	for start > 0 && createdPath[start-1] >= '0' && createdPath[start-1] <= '9' {
		start--
	}
	return strconv.ParseInt(createdPath[start:idx+1], 10, 64)
}
