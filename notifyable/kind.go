// Package notifyable implements the typed, polymorphic object graph
// (spec §4.5, component C5): kind descriptors, the path/key algebra,
// cache-first/lazy lookup, children enumeration, and removal.
//
// Grounded on github.com/NVIDIA/aistore/xaction/registry's
// mutex-guarded table + find/insert/remove shape for the registry
// itself, and on _examples/original_source/src/core/notifyablekeymanipulator.cc
// for the path-splitting / removeObjectFromKey / getNotifyableKeyFromKey
// algebra spec §4.5 describes.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package notifyable

// Kind is the static type of a Notifyable (spec §3).
type Kind int

const (
	KindRoot Kind = iota
	KindApplication
	KindGroup
	KindDataDistribution
	KindNode
	KindProcessSlot
	KindPropertyList
	KindQueue
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "Root"
	case KindApplication:
		return "Application"
	case KindGroup:
		return "Group"
	case KindDataDistribution:
		return "DataDistribution"
	case KindNode:
		return "Node"
	case KindProcessSlot:
		return "ProcessSlot"
	case KindPropertyList:
		return "PropertyList"
	case KindQueue:
		return "Queue"
	default:
		return "Unknown"
	}
}

// DirToken is the bit-exact repository directory token for kind (spec
// §6): paths are self-describing and parseable back to kind via these
// tokens.
func (k Kind) DirToken() string {
	switch k {
	case KindApplication:
		return "_applicationDir"
	case KindGroup:
		return "_groupDir"
	case KindDataDistribution:
		return "_dataDistributionDir"
	case KindNode:
		return "_nodeDir"
	case KindProcessSlot:
		return "_processSlotDir"
	case KindPropertyList:
		return "_propertyListDir"
	case KindQueue:
		return "_queueDir"
	default:
		return ""
	}
}

// dirTokenToKind is the inverse of DirToken, built once at init.
var dirTokenToKind = func() map[string]Kind {
	m := make(map[string]Kind)
	for _, k := range []Kind{
		KindApplication, KindGroup, KindDataDistribution,
		KindNode, KindProcessSlot, KindPropertyList, KindQueue,
	} {
		m[k.DirToken()] = k
	}
	return m
}()

// KindFromDirToken resolves a path component back to its Kind, or
// false if tok is not a recognized kind directory.
func KindFromDirToken(tok string) (Kind, bool) {
	k, ok := dirTokenToKind[tok]
	return k, ok
}

// permittedChildren is the kind grammar from spec §3: permitted
// parent -> child kinds.
var permittedChildren = map[Kind][]Kind{
	KindRoot:             {KindApplication},
	KindApplication:      {KindGroup, KindNode, KindDataDistribution, KindPropertyList, KindQueue},
	KindGroup:            {KindGroup, KindNode, KindDataDistribution, KindPropertyList, KindQueue},
	KindNode:             {KindProcessSlot, KindPropertyList, KindQueue},
	KindProcessSlot:      {KindPropertyList, KindQueue},
	KindDataDistribution: {KindPropertyList, KindQueue},
	KindPropertyList:     {KindPropertyList, KindQueue},
	KindQueue:            {KindPropertyList, KindQueue},
}

// PermitsChild reports whether the kind grammar allows child to be a
// direct child of parent (spec §3 invariant).
func PermitsChild(parent, child Kind) bool {
	for _, k := range permittedChildren[parent] {
		if k == child {
			return true
		}
	}
	return false
}
