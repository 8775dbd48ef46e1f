// Package event implements the multiplexed dispatcher (spec §4.2,
// component C2): a single goroutine consumes the store adapter's event
// stream, routes each to exactly one internal cache handler keyed by
// (ChangeKind, path), and fans out the resulting user-visible events to
// every registered client queue. Timer events do not pass through it;
// client timers run on package periodic.
//
// Grounded on github.com/NVIDIA/aistore/xaction/registry's single
// dispatcher goroutine draining a channel under a registry lock, and on
// cmn.StopCh's sentinel-close-to-drain shutdown shape.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package event

import (
	"sync"

	"github.com/golang/glog"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/store"
)

// ChangeKind selects which internal cache handler owns an event path
// (spec §4.2 step 2).
type ChangeKind int

const (
	ChangeNotifyableRemoved ChangeKind = iota
	ChangeCurrentState
	ChangeDesiredState
	ChangeApplications
	ChangeGroups
	ChangeDataDistributions
	ChangeNodes
	ChangeProcessSlots
	ChangePropertyLists
	ChangeQueues
	ChangePropertyListValues
	ChangeShards
	ChangeProcessSlotProcessInfo
	ChangeNodeProcessSlotInfo
	ChangeSynchronize
	ChangePrecLockNodeExists
	ChangeQueueChild
)

func (c ChangeKind) String() string {
	names := [...]string{
		"NOTIFYABLE_REMOVED", "CURRENT_STATE", "DESIRED_STATE",
		"APPLICATIONS", "GROUPS", "DATADISTRIBUTIONS", "NODES",
		"PROCESSSLOTS", "PROPERTYLISTS", "QUEUES", "PROPERTYLIST_VALUES",
		"SHARDS", "PROCESSSLOT_PROCESSINFO", "NODE_PROCESS_SLOT_INFO",
		"SYNCHRONIZE", "PREC_LOCK_NODE_EXISTS", "QUEUE_CHILD",
	}
	if int(c) < 0 || int(c) >= len(names) {
		return "UNKNOWN"
	}
	return names[c]
}

// UserEventMask selects which registered handlers receive a dispatched
// event (spec §4.9): handlers register a mask, events carry a single
// bit, and a handler fires iff its mask intersects the event's bit.
type UserEventMask uint32

const (
	EventNotifyableRemoved UserEventMask = 1 << iota
	EventCurrentStateChange
	EventDesiredStateChange
	EventChildrenChange
	EventPropertyListValuesChange
	EventShardsChange
	EventProcessInfoChange
	EventSynchronize
	EventLockNodeDeleted
	EventQueueChildChange
	// EventEnd is the sentinel shutdown event (spec §4.2 "Shutdown").
	EventEnd
)

// changeToUserEvent is the fixed change-kind -> user-event-bit mapping
// spec §4.2 step 4 assumes ("Non-NO_EVENT results are fanned out...").
var changeToUserEvent = map[ChangeKind]UserEventMask{
	ChangeNotifyableRemoved:      EventNotifyableRemoved,
	ChangeCurrentState:          EventCurrentStateChange,
	ChangeDesiredState:          EventDesiredStateChange,
	ChangeApplications:          EventChildrenChange,
	ChangeGroups:                EventChildrenChange,
	ChangeDataDistributions:     EventChildrenChange,
	ChangeNodes:                 EventChildrenChange,
	ChangeProcessSlots:          EventChildrenChange,
	ChangePropertyLists:         EventChildrenChange,
	ChangeQueues:                EventChildrenChange,
	ChangePropertyListValues:    EventPropertyListValuesChange,
	ChangeShards:                EventShardsChange,
	ChangeProcessSlotProcessInfo: EventProcessInfoChange,
	ChangeNodeProcessSlotInfo:   EventProcessInfoChange,
	ChangeSynchronize:           EventSynchronize,
	ChangePrecLockNodeExists:    EventLockNodeDeleted,
	ChangeQueueChild:            EventQueueChildChange,
}

// UserEvent is what a client queue carries: the affected path plus the
// event bit that fired (spec §4.2 step 4's "(path, event-code)").
type UserEvent struct {
	Path string
	Mask UserEventMask
}

// CacheHandlerFunc is an internal cache handler (spec §4.2 step 3): it
// updates local state for path, re-arms watches as needed, and reports
// whether a user-visible event resulted.
type CacheHandlerFunc func(path string) (fired bool, err error)

// handlerKey identifies one (ChangeKind, path) in-flight watch
// registration (spec §4.2's re-entrancy gate).
type handlerKey struct {
	kind ChangeKind
	path string
}

// Dispatcher is the single dispatcher goroutine (spec §4.2). It owns no
// store connection directly; it only consumes the adapter's event
// stream handed to it at Run time.
type Dispatcher struct {
	handlersMu sync.RWMutex
	handlers   map[ChangeKind]CacheHandlerFunc

	readyMu sync.Mutex
	ready   map[handlerKey]bool

	clientsMu sync.RWMutex
	clients   map[string]chan UserEvent

	pathKind   func(path string) (ChangeKind, string, bool)
	timers     <-chan UserEvent
	done       chan struct{}
	stopOnce   sync.Once
}

// New builds a Dispatcher. pathKind maps a raw store-event path to the
// ChangeKind that owns it and the Notifyable path the user event should
// carry; it returns ok=false for paths that are not a Notifyable's
// concern (for instance a lock's own directory nodes), which the
// pipeline routes to a separate branch per spec §4.2 step 1.
func New(pathKind func(path string) (ChangeKind, string, bool)) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[ChangeKind]CacheHandlerFunc),
		ready:    make(map[handlerKey]bool),
		clients:  make(map[string]chan UserEvent),
		pathKind: pathKind,
		done:     make(chan struct{}),
	}
}

// RegisterCacheHandler installs the single internal handler for kind
// (spec §4.2 step 2: "exactly one internal cache handler").
func (d *Dispatcher) RegisterCacheHandler(kind ChangeKind, fn CacheHandlerFunc) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers[kind] = fn
}

// RegisterClient creates a client's event queue; client.Client's
// handler loop reads it.
func (d *Dispatcher) RegisterClient(id string, buffer int) <-chan UserEvent {
	ch := make(chan UserEvent, buffer)
	d.clientsMu.Lock()
	d.clients[id] = ch
	d.clientsMu.Unlock()
	return ch
}

func (d *Dispatcher) UnregisterClient(id string) {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	if ch, ok := d.clients[id]; ok {
		close(ch)
		delete(d.clients, id)
	}
}

// armWatch marks (kind, path) in-flight, returning false if a
// registration was already outstanding (spec §4.2's
// "handlerCallbackReady... setting it twice... is a fatal invariant
// violation").
func (d *Dispatcher) armWatch(kind ChangeKind, path string) bool {
	k := handlerKey{kind, path}
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	if d.ready[k] {
		return false
	}
	d.ready[k] = true
	return true
}

func (d *Dispatcher) disarmWatch(kind ChangeKind, path string) {
	k := handlerKey{kind, path}
	d.readyMu.Lock()
	delete(d.ready, k)
	d.readyMu.Unlock()
}

// Run consumes storeEvents until the channel closes or Stop is called,
// dispatching each to its cache handler and fanning out resulting user
// events. It blocks; callers run it in its own goroutine (spec §4.2:
// "a dedicated dispatcher thread").
func (d *Dispatcher) Run(storeEvents <-chan store.Event) {
	for {
		select {
		case ev, ok := <-storeEvents:
			if !ok {
				d.broadcastEnd()
				return
			}
			d.handleStoreEvent(ev)
		case <-d.done:
			d.broadcastEnd()
			return
		}
	}
}

func (d *Dispatcher) handleStoreEvent(ev store.Event) {
	if ev.Type == store.EventSession && ev.State == store.StateSessionExpired {
		d.broadcastEnd()
		return
	}

	kind, notifyablePath, ok := d.pathKind(ev.Path)
	if !ok {
		// Not a Notifyable's concern: the pipeline has nothing further
		// to do.
		return
	}

	d.disarmWatch(kind, ev.Path)

	d.handlersMu.RLock()
	handler, ok := d.handlers[kind]
	d.handlersMu.RUnlock()
	if !ok {
		glog.Warningf("event: no cache handler registered for %s (path %s)", kind, ev.Path)
		return
	}

	fired, err := handler(ev.Path)
	if err != nil {
		glog.Errorf("event: cache handler for %s %s: %v", kind, ev.Path, err)
		return
	}
	if !fired {
		return
	}

	mask, ok := changeToUserEvent[kind]
	if !ok {
		panic(cerrors.InconsistentInternalState("event: no user-event mapping for change kind %s", kind))
	}
	d.fanOut(UserEvent{Path: notifyablePath, Mask: mask})
}

func (d *Dispatcher) fanOut(ue UserEvent) {
	d.clientsMu.RLock()
	defer d.clientsMu.RUnlock()
	for id, ch := range d.clients {
		select {
		case ch <- ue:
		default:
			glog.Warningf("event: client %s queue full, dropping %v", id, ue)
		}
	}
}

func (d *Dispatcher) broadcastEnd() {
	d.fanOut(UserEvent{Mask: EventEnd})
}

// Stop injects the sentinel shutdown (spec §4.2 "Shutdown": "a sentinel
// END event is injected").
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

// TryArmWatch exposes armWatch to cache-handler implementations living
// outside this package, keeping the re-entrancy gate centralized here.
func (d *Dispatcher) TryArmWatch(kind ChangeKind, path string) bool {
	return d.armWatch(kind, path)
}
