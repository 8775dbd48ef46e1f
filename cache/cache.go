// Package cache implements the cached-object / watch-and-notify engine
// (spec §4.4, component C4): a local mirror of a remote JSON value with
// a monotonic version counter used for optimistic-concurrency
// conditional writes, and a history-tracking variant for state bags.
//
// Grounded on github.com/NVIDIA/aistore/cluster's Bowner/Smap snapshot
// pattern (an in-memory struct kept current via store-driven reloads,
// swapped under a single mutex, published via a CAS-style conditional
// write) and on _examples/original_source's cachedobject.cc /
// cachedstate.cc version-guard + publish shape.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package cache

import (
	"sync"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/internal/codec"
	"github.com/clusterlib/clusterlib/store"
)

// VersionInitial is the sentinel "never loaded" version (spec §3).
const VersionInitial int64 = -1

// Object is the scalar cached value (spec §4.4's "Scalar cached
// value"): property-list key/values, process-info, process-slot-info.
type Object struct {
	st   store.Client
	path string

	mu      sync.Mutex
	value   map[string]interface{}
	version int64
	stat    store.Stat
}

func New(st store.Client, path string) *Object {
	return &Object{st: st, path: path, value: make(map[string]interface{}), version: VersionInitial}
}

// LoadFromRepository implements spec §4.4's loadFromRepository: reads
// node data with a re-armed watch, applies the version-guard from
// spec §3, and updates the local cache unless setWatchesOnly.
func (o *Object) LoadFromRepository(setWatchesOnly bool) error {
	raw, stat, err := o.st.GetNodeData(o.path, store.WithWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return nil
		}
		return cerrors.Wrap(cerrors.KindRepositoryInternals, o.path, err)
	}
	if setWatchesOnly {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.version != VersionInitial && stat.Version <= o.version {
		if stat.Version < o.version {
			return cerrors.InconsistentInternalState("cached object %s: incoming version %d < local %d", o.path, stat.Version, o.version)
		}
		return nil // equal versions: no-op
	}
	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &decoded); err != nil {
			return cerrors.Wrap(cerrors.KindRepositoryInternals, o.path, err)
		}
	} else {
		decoded = make(map[string]interface{})
	}
	o.value = decoded
	o.version = stat.Version
	o.stat = *stat
	return nil
}

// SetField is a per-field mutator, copy-in under the cache's lock (spec
// §4.4: "publication is a separate explicit step so callers can
// batch").
func (o *Object) SetField(key string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value[key] = value
}

func (o *Object) GetField(key string) (interface{}, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.value[key]
	return v, ok
}

// Publish encodes local state and writes it with expectedVersion set
// per spec §4.4: -1 (unconditional) or the locally-held version.
// Returns the new version on success; on a concurrent writer's
// BadVersion, returns *PublishVersion per spec §7.
func (o *Object) Publish(unconditional bool) (int64, error) {
	o.mu.Lock()
	payload := codec.Marshal(o.value)
	expected := o.version
	if unconditional {
		expected = store.VersionAny
	}
	o.mu.Unlock()

	stat, err := o.st.SetNodeData(o.path, payload, expected)
	if err != nil {
		if cerrors.Is(err, cerrors.KindPublishVersion) {
			return 0, cerrors.PublishVersion(o.path)
		}
		return 0, cerrors.Wrap(cerrors.KindRepositoryInternals, o.path, err)
	}

	o.mu.Lock()
	o.version = stat.Version
	o.stat = *stat
	o.mu.Unlock()
	return stat.Version, nil
}

func (o *Object) Version() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}
