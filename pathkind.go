package clusterlib

import (
	"strings"

	"github.com/clusterlib/clusterlib/domain"
	"github.com/clusterlib/clusterlib/event"
	"github.com/clusterlib/clusterlib/lock"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/queue"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

// stateSuffixes maps a repository sub-node suffix (spec §6's bit-exact
// tokens) to the ChangeKind that owns it.
var stateSuffixes = []struct {
	suffix string
	kind   event.ChangeKind
}{
	{"/_currentStateJsonValue", event.ChangeCurrentState},
	{"/_desiredStateJsonValue", event.ChangeDesiredState},
	{"/_keyvalJsonObject", event.ChangePropertyListValues},
	{"/_shardJsonObject", event.ChangeShards},
}

// dirChangeKind maps a kind's children-directory token to the
// ChangeKind fired when that directory's membership changes.
var dirChangeKind = map[notifyable.Kind]event.ChangeKind{
	notifyable.KindApplication:      event.ChangeApplications,
	notifyable.KindGroup:            event.ChangeGroups,
	notifyable.KindDataDistribution: event.ChangeDataDistributions,
	notifyable.KindNode:             event.ChangeNodes,
	notifyable.KindProcessSlot:      event.ChangeProcessSlots,
	notifyable.KindPropertyList:     event.ChangePropertyLists,
	notifyable.KindQueue:            event.ChangeQueues,
}

// pathKind classifies a raw store-event path into the ChangeKind whose
// cache handler owns it and the path the resulting event should carry
// (spec §4.2 step 1/2). A lock's bid node and a queue's element
// directory each get their own ChangeKind (PREC_LOCK_NODE_EXISTS,
// QUEUE_CHILD) whose cache handler signals the waiting [[lock]]/
// [[queue]] directly by path rather than reloading any cached state.
func pathKind(path string) (event.ChangeKind, string, bool) {
	for _, s := range stateSuffixes {
		if strings.HasSuffix(path, s.suffix) {
			return s.kind, strings.TrimSuffix(path, s.suffix), true
		}
	}

	if queue.IsElementsDirPath(path) {
		return event.ChangeQueueChild, path, true
	}
	if lock.IsBidPath(path) {
		return event.ChangePrecLockNodeExists, path, true
	}

	for kind, ck := range dirChangeKind {
		suffix := "/" + kind.DirToken()
		if strings.HasSuffix(path, suffix) {
			return ck, strings.TrimSuffix(path, suffix), true
		}
		// A child added/removed under the directory also reports on the
		// directory path itself when the store fires a children-changed
		// event, but an individual child's own sub-path (one level
		// deeper) is not this directory's concern.
	}

	if _, _, ok := notifyable.LeafKind(path); ok {
		return event.ChangeNotifyableRemoved, path, true
	}
	if notifyable.IsRoot(path) {
		return event.ChangeNotifyableRemoved, path, true
	}

	return 0, "", false
}

// registerCacheHandlers installs the internal cache handler for every
// ChangeKind pathKind can produce (spec §4.2 step 2: "exactly one
// internal cache handler per change kind").
func registerCacheHandlers(disp *event.Dispatcher, reg *notifyable.Registry, signals *signalmap.Map) {
	disp.RegisterCacheHandler(event.ChangeCurrentState, func(path string) (bool, error) {
		notifyablePath := strings.TrimSuffix(path, "/_currentStateJsonValue")
		obj, ok := reg.Lookup(notifyablePath)
		if !ok {
			return false, nil
		}
		node, ok := obj.(*domain.Node)
		if !ok {
			return false, nil
		}
		if err := node.Current.LoadFromRepository(false); err != nil {
			return false, err
		}
		return true, nil
	})

	disp.RegisterCacheHandler(event.ChangeDesiredState, func(path string) (bool, error) {
		notifyablePath := strings.TrimSuffix(path, "/_desiredStateJsonValue")
		obj, ok := reg.Lookup(notifyablePath)
		if !ok {
			return false, nil
		}
		node, ok := obj.(*domain.Node)
		if !ok {
			return false, nil
		}
		if err := node.Desired.LoadFromRepository(false); err != nil {
			return false, err
		}
		return true, nil
	})

	disp.RegisterCacheHandler(event.ChangePropertyListValues, func(path string) (bool, error) {
		notifyablePath := strings.TrimSuffix(path, "/_keyvalJsonObject")
		obj, ok := reg.Lookup(notifyablePath)
		if !ok {
			return false, nil
		}
		pl, ok := obj.(*domain.PropertyList)
		if !ok {
			return false, nil
		}
		if err := pl.KeyVal.LoadFromRepository(false); err != nil {
			return false, err
		}
		return true, nil
	})

	disp.RegisterCacheHandler(event.ChangeShards, func(path string) (bool, error) {
		notifyablePath := strings.TrimSuffix(path, "/_shardJsonObject")
		obj, ok := reg.Lookup(notifyablePath)
		if !ok {
			return false, nil
		}
		dd, ok := obj.(*domain.DataDistribution)
		if !ok {
			return false, nil
		}
		if err := dd.Reload(); err != nil {
			return false, err
		}
		return true, nil
	})

	// Children-directory changes: the registry's own lazy lookup
	// protocol re-arms the next watch on demand (GetChildrenNames), so
	// the handler here only needs to report that a user-visible event
	// fired; there is no local state to eagerly reload.
	for _, ck := range dirChangeKind {
		ck := ck
		disp.RegisterCacheHandler(ck, func(path string) (bool, error) { return true, nil })
	}

	disp.RegisterCacheHandler(event.ChangeNotifyableRemoved, func(path string) (bool, error) {
		// Any event on a bare Notifyable key lands here, including a
		// children change; only a key that is really gone is a removal.
		exists, err := reg.Store().NodeExists(path, store.WithWatch)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
		reg.HandleRemoteRemoval(path)
		return true, nil
	})

	// QUEUE_CHILD / PREC_LOCK_NODE_EXISTS carry no cached state to
	// reload; the watch itself was armed by the blocked Queue.Take or
	// Lock.AcquireWaitUsecs caller against this exact path, so waking
	// its signalmap entry is the entire job (spec §4.7's watch re-arm,
	// §4.6's lower-bid wait).
	disp.RegisterCacheHandler(event.ChangeQueueChild, func(path string) (bool, error) {
		signals.Signal(path)
		return true, nil
	})
	disp.RegisterCacheHandler(event.ChangePrecLockNodeExists, func(path string) (bool, error) {
		signals.Signal(path)
		return true, nil
	})
}
