// notifyable.go defines the polymorphic entity itself (spec §3).
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package notifyable

import "sync"

// LifecycleState is READY or REMOVED (spec §3); REMOVED is terminal.
type LifecycleState int

const (
	StateReady LifecycleState = iota
	StateRemoved
)

func (s LifecycleState) String() string {
	if s == StateRemoved {
		return "REMOVED"
	}
	return "READY"
}

// Object is the base every domain kind (Application, Group, Node, ...)
// embeds. Its identity is Key; Parent is a weak (non-owning) reference
// resolved lazily through the registry to avoid cycles (spec §9).
type Object struct {
	mu sync.RWMutex

	key        string
	name       string
	kind       Kind
	parentKey  string // "" for Root
	state      LifecycleState
	registry   *Registry // back-reference for lazy parent resolution
}

func newObject(registry *Registry, key, name string, kind Kind, parentKey string) *Object {
	return &Object{
		registry:  registry,
		key:       key,
		name:      name,
		kind:      kind,
		parentKey: parentKey,
		state:     StateReady,
	}
}

// NewObject constructs the base every concrete kind in package domain
// embeds. Descriptor.CreateNotifyable implementations call this; it
// never touches the store (spec §4.5 step 6/7 separate repository
// verification from in-memory construction).
func NewObject(registry *Registry, key, name string, kind Kind, parentKey string) *Object {
	return newObject(registry, key, name, kind, parentKey)
}

func (o *Object) Key() string  { return o.key }
func (o *Object) Name() string { return o.name }
func (o *Object) Kind() Kind   { return o.kind }

func (o *Object) State() LifecycleState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Object) IsRemoved() bool { return o.State() == StateRemoved }

// markRemoved flips state to REMOVED. Terminal: a subsequent call is a
// no-op, matching spec §3's "never revives under the same identity".
func (o *Object) markRemoved() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateRemoved
}

// Parent resolves the weak parent reference through the registry.
// Returns nil for Root, which has no parent.
func (o *Object) Parent() (Notifyable, bool) {
	if o.parentKey == "" {
		return nil, false
	}
	return o.registry.lookupCached(o.parentKey)
}

// Notifyable is the polymorphic contract every kind implements (spec
// §3/§4.5). Concrete kinds (package domain) embed *Object and add
// kind-specific behavior; the registry only ever deals in this
// interface plus the per-kind Descriptor.
type Notifyable interface {
	Key() string
	Name() string
	Kind() Kind
	State() LifecycleState
	IsRemoved() bool
	Parent() (Notifyable, bool)
	// markRemoved flips the object to REMOVED; only the registry calls
	// this, as part of the removal protocol (spec §4.5 step 4). Sealed
	// to this package: Object is the only type that defines it, so only
	// types embedding *Object can satisfy Notifyable at all.
	markRemoved()
	// Initialize is called by the registry exactly once, right after
	// insertion into the cache map, to load current-/desired-state and
	// run kind-specific setup (spec §4.5 step 7). Exported because every
	// concrete kind in package domain overrides it with its own
	// repository-loading logic; unlike markRemoved it cannot be sealed.
	Initialize() error
}
