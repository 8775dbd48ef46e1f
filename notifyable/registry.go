// registry.go implements the central registry (spec §4.5): kind
// descriptor table, cache-first/lazy lookup protocol, children
// enumeration, and removal.
//
// Grounded on github.com/NVIDIA/aistore/xaction/registry/registry.go's
// registry/registryEntries shape (one mutex-guarded table per concern,
// find/insert/remove as small critical sections, no store I/O held
// under the table lock).
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package notifyable

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/store"
)

// AccessMode selects lookup behavior (spec §4.5 step 4-6).
type AccessMode int

const (
	CachedOnly AccessMode = iota
	LoadFromRepository
	CreateIfNotFound
)

// Descriptor is the per-kind behavior table spec §4.5 calls for:
// every kind-specific operation dispatched through composition rather
// than virtual inheritance (spec §9 Design Notes).
type Descriptor interface {
	RegisteredName() string
	GenerateKey(parentKey, name string) string
	IsValidName(name string) bool
	// GenerateRepositoryList returns the repository paths that must
	// exist for this Notifyable to be considered present.
	GenerateRepositoryList(key string) []string
	// CreateNotifyable constructs the in-memory instance; it does not
	// touch the store.
	CreateNotifyable(reg *Registry, name, key, parentKey string) Notifyable
}

// Registry is the single process-wide table (spec §9: "per-process
// singleton... encapsulate in a single library handle").
type Registry struct {
	store store.Client

	descMu sync.RWMutex
	desc   map[Kind]Descriptor

	// One lock per kind (spec §5 Shared-resource policy), held only
	// across map operations, never across store I/O.
	cacheMu map[Kind]*sync.RWMutex
	cache   map[Kind]map[string]Notifyable

	childLocksMu sync.Mutex
	childLocks   map[string]*sync.RWMutex
}

func NewRegistry(st store.Client) *Registry {
	r := &Registry{
		store:      st,
		desc:       make(map[Kind]Descriptor),
		cacheMu:    make(map[Kind]*sync.RWMutex),
		cache:      make(map[Kind]map[string]Notifyable),
		childLocks: make(map[string]*sync.RWMutex),
	}
	for _, k := range []Kind{
		KindRoot, KindApplication, KindGroup, KindDataDistribution,
		KindNode, KindProcessSlot, KindPropertyList, KindQueue,
	} {
		r.cacheMu[k] = &sync.RWMutex{}
		r.cache[k] = make(map[string]Notifyable)
	}
	return r
}

func (r *Registry) RegisterKind(kind Kind, d Descriptor) {
	r.descMu.Lock()
	defer r.descMu.Unlock()
	r.desc[kind] = d
}

func (r *Registry) descriptorFor(kind Kind) (Descriptor, bool) {
	r.descMu.RLock()
	defer r.descMu.RUnlock()
	d, ok := r.desc[kind]
	return d, ok
}

func (r *Registry) Store() store.Client { return r.store }

// CacheRoot inserts the process-wide Root instance into the registry's
// cache (spec §4.5's cache map), since GetRoot constructs it outside
// the normal parent-relative lookup protocol.
func (r *Registry) CacheRoot(obj Notifyable) {
	r.cacheMu[KindRoot].Lock()
	r.cache[KindRoot][obj.Key()] = obj
	r.cacheMu[KindRoot].Unlock()
}

// Lookup returns the cached Notifyable for key, if any, without
// touching the store (spec §4.2's cache handlers resolve a watch-fired
// path back to the owning Notifyable this way).
func (r *Registry) Lookup(key string) (Notifyable, bool) {
	return r.lookupCached(key)
}

// HandleRemoteRemoval evicts key from the cache and marks it REMOVED in
// response to an external deletion observed via a store watch (as
// opposed to Remove, which originates the deletion itself).
func (r *Registry) HandleRemoteRemoval(key string) {
	kind, _, ok := LeafKind(key)
	if !ok {
		return
	}
	r.cacheMu[kind].Lock()
	if obj, ok := r.cache[kind][key]; ok {
		obj.markRemoved()
		delete(r.cache[kind], key)
	}
	r.cacheMu[kind].Unlock()
}

func (r *Registry) lookupCached(key string) (Notifyable, bool) {
	for kind, m := range r.cache {
		r.cacheMu[kind].RLock()
		obj, ok := m[key]
		r.cacheMu[kind].RUnlock()
		if ok {
			return obj, true
		}
	}
	return nil, false
}

func (r *Registry) childLockFor(parentKey string) *sync.RWMutex {
	r.childLocksMu.Lock()
	defer r.childLocksMu.Unlock()
	l, ok := r.childLocks[parentKey]
	if !ok {
		l = &sync.RWMutex{}
		r.childLocks[parentKey] = l
	}
	return l
}

// GetNotifyableWaitMsecs implements the lookup protocol of spec §4.5.
//
// Re-entrancy (spec §4.5 step 5: "if we already own [the CHILD_LOCK]
// at a sufficient level, skip") is not modeled via thread identity —
// goroutines have none to inspect — but falls out naturally here
// because createRepositoryObjects never calls back into this method:
// it creates the exact paths GenerateRepositoryList names directly,
// so there is no recursive re-acquisition to skip in the first place.
func (r *Registry) GetNotifyableWaitMsecs(parentKey string, kind Kind, name string, access AccessMode, timeout time.Duration) (completed bool, obj Notifyable, err error) {
	desc, ok := r.descriptorFor(kind)
	if !ok {
		return true, nil, cerrors.InconsistentInternalState("no descriptor registered for kind %s", kind)
	}
	if !desc.IsValidName(name) {
		return true, nil, cerrors.InvalidArguments("invalid name %q for kind %s", name, kind)
	}
	key := desc.GenerateKey(parentKey, name)

	r.cacheMu[kind].RLock()
	if obj, ok := r.cache[kind][key]; ok {
		r.cacheMu[kind].RUnlock()
		return true, obj, nil
	}
	r.cacheMu[kind].RUnlock()

	if access == CachedOnly {
		return true, nil, nil
	}

	wantExclusive := access == CreateIfNotFound
	if parentKey != "" {
		lock := r.childLockFor(parentKey)
		acquired := make(chan struct{})
		go func() {
			if wantExclusive {
				lock.Lock()
			} else {
				lock.RLock()
			}
			close(acquired)
		}()
		if timeout < 0 {
			<-acquired
		} else {
			select {
			case <-acquired:
			case <-time.After(timeout):
				return false, nil, nil
			}
		}
		defer func() {
			if wantExclusive {
				lock.Unlock()
			} else {
				lock.RUnlock()
			}
		}()
	}

	obj, err = r.loadNotifyableFromRepository(parentKey, name, key, access, desc)
	if err != nil {
		return true, nil, err
	}
	if obj == nil {
		return true, nil, nil
	}

	r.cacheMu[kind].Lock()
	r.cache[kind][key] = obj
	r.cacheMu[kind].Unlock()

	if err := obj.Initialize(); err != nil {
		return true, nil, err
	}
	return true, obj, nil
}

func (r *Registry) loadNotifyableFromRepository(parentKey, name, key string, access AccessMode, desc Descriptor) (Notifyable, error) {
	paths := desc.GenerateRepositoryList(key)
	allExist := true
	for _, p := range paths {
		exists, err := r.store.NodeExists(p, store.WithWatch)
		if err != nil {
			return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, p, err)
		}
		if !exists {
			allExist = false
			break
		}
	}
	if !allExist {
		if access != CreateIfNotFound {
			return nil, nil
		}
		if err := r.createRepositoryObjects(paths); err != nil {
			return nil, err
		}
	}
	return desc.CreateNotifyable(r, name, key, parentKey), nil
}

func (r *Registry) createRepositoryObjects(paths []string) error {
	for _, p := range paths {
		if _, err := r.store.CreateNode(p, nil, store.FlagNone); err != nil {
			if cerrors.Is(err, cerrors.KindNodeExists) {
				continue
			}
			return cerrors.Wrap(cerrors.KindRepositoryInternals, p, err)
		}
	}
	return nil
}

// GetChildrenNames lists the children of dirPath (a kind-directory
// subnode of a Notifyable) and arms the corresponding watch.
func (r *Registry) GetChildrenNames(dirPath string) ([]string, error) {
	names, err := r.store.GetNodeChildren(dirPath, store.WithWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return nil, nil
		}
		return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, dirPath, err)
	}
	return names, nil
}

// GetNotifyableList bulk-resolves a set of child names under parentKey
// for kind; missing entries are silently omitted, matching spec §4.5's
// "children change is racy by design".
func (r *Registry) GetNotifyableList(parentKey string, kind Kind, names []string, access AccessMode) []Notifyable {
	out := make([]Notifyable, 0, len(names))
	for _, name := range names {
		_, obj, err := r.GetNotifyableWaitMsecs(parentKey, kind, name, access, 0)
		if err != nil || obj == nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// Remove implements spec §4.5's removal protocol.
func (r *Registry) Remove(key string, removeChildren bool) error {
	if IsRoot(key) {
		return cerrors.InvalidMethod("cannot remove Root")
	}
	obj, ok := r.lookupCached(key)
	if ok && obj.IsRemoved() {
		return cerrors.ObjectRemoved(key)
	}

	parentKey := RemoveObjectFromKey(key)
	parentLock := r.childLockFor(parentKey)
	parentLock.Lock()
	defer parentLock.Unlock()

	descendants, err := r.collectDescendants(key)
	if err != nil {
		return err
	}
	if !removeChildren && len(descendants) > 0 {
		return cerrors.InvalidMethod("notifyable %s has children and removeChildren is false", key)
	}

	// Depth-first from leaves: descendants were collected via BFS, so
	// deleting in reverse order removes children before their parents.
	ordered := append(descendants, key)
	for i := len(ordered) - 1; i >= 0; i-- {
		r.removeOne(ordered[i])
	}

	r.store.Sync(parentKey, func(err error) {
		if err != nil {
			glog.Errorf("sync after removing %s: %v", key, err)
		}
	})
	return nil
}

// collectDescendants does a BFS over the kind grammar's permitted
// children, reading directly from the store so it also finds
// not-yet-cached children (spec §4.5 step 2).
func (r *Registry) collectDescendants(key string) ([]string, error) {
	kind, _, ok := LeafKind(key)
	if !ok {
		return nil, cerrors.InvalidArguments("not a notifyable key: %s", key)
	}
	var out []string
	queue := []struct {
		key  string
		kind Kind
	}{{key, kind}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, childKind := range permittedChildren[cur.kind] {
			dir := cur.key + "/" + childKind.DirToken()
			names, err := r.store.GetNodeChildren(dir, store.NoWatch)
			if err != nil {
				if cerrors.IsNoNode(err) {
					continue
				}
				return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, dir, err)
			}
			for _, name := range names {
				childKey := dir + "/" + name
				out = append(out, childKey)
				queue = append(queue, struct {
					key  string
					kind Kind
				}{childKey, childKind})
			}
		}
	}
	return out, nil
}

func (r *Registry) removeOne(key string) {
	kind, _, ok := LeafKind(key)
	if !ok {
		glog.Errorf("removeOne: %s is not a notifyable key", key)
		return
	}
	r.cacheMu[kind].Lock()
	if obj, ok := r.cache[kind][key]; ok {
		obj.markRemoved()
		delete(r.cache[kind], key)
	}
	r.cacheMu[kind].Unlock()

	if err := r.store.DeleteNode(key, true, store.VersionAny); err != nil && !cerrors.IsNoNode(err) {
		glog.Errorf("delete repository subtree for %s: %v", key, err)
	}
}
