// Package domain implements the concrete Notifyable kinds (spec §4.10 /
// component C10): Root, Application, Group, Node, ProcessSlot,
// DataDistribution, PropertyList, Queue, each specializing
// package notifyable's Descriptor/Notifyable contracts.
//
// Grounded on notifyable's own Registry/Object shape (composition over
// virtual inheritance, per spec §9) plus
// _examples/original_source's per-kind .cc files (application.cc,
// group.cc, node.cc, ...) for which repository sub-paths and state
// bags each kind owns.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package domain

import (
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/signalmap"
)

// simpleDescriptor is the shared shape behind every kind that adds no
// extra repository structure beyond the kind directory itself
// (Application, Group, ProcessSlot): RegisteredName/IsValidName/
// GenerateKey/GenerateRepositoryList are identical, only
// CreateNotifyable differs per kind.
type simpleDescriptor struct {
	kind     notifyable.Kind
	create   func(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable
}

func (d simpleDescriptor) RegisteredName() string { return d.kind.String() }

func (d simpleDescriptor) GenerateKey(parentKey, name string) string {
	return notifyable.GenerateKey(parentKey, d.kind, name)
}

func (d simpleDescriptor) IsValidName(name string) bool { return notifyable.IsValidName(name) }

func (d simpleDescriptor) GenerateRepositoryList(key string) []string {
	return []string{key}
}

func (d simpleDescriptor) CreateNotifyable(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
	return d.create(reg, name, key, parentKey)
}

// RegisterAll installs every kind descriptor (spec §9: "per-process
// singletons... instantiate once"). Call once per Registry at startup.
// signals is the single process-wide signal map (spec §5's "Signal
// map: one lock for the table") shared by every Queue's blocking take.
func RegisterAll(reg *notifyable.Registry, signals *signalmap.Map) {
	reg.RegisterKind(notifyable.KindApplication, simpleDescriptor{
		kind: notifyable.KindApplication,
		create: func(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
			return newApplication(reg, name, key, parentKey)
		},
	})
	reg.RegisterKind(notifyable.KindGroup, simpleDescriptor{
		kind: notifyable.KindGroup,
		create: func(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
			return newGroup(reg, name, key, parentKey)
		},
	})
	reg.RegisterKind(notifyable.KindProcessSlot, simpleDescriptor{
		kind: notifyable.KindProcessSlot,
		create: func(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
			return newProcessSlot(reg, name, key, parentKey)
		},
	})
	reg.RegisterKind(notifyable.KindNode, nodeDescriptor{})
	reg.RegisterKind(notifyable.KindPropertyList, propertyListDescriptor{})
	reg.RegisterKind(notifyable.KindQueue, queueDescriptor{signals: signals})
	reg.RegisterKind(notifyable.KindDataDistribution, dataDistributionDescriptor{})
}

// Application, Group, ProcessSlot are plain Notifyables: they carry no
// state of their own. Unlike Node they hold no current-/desired-state
// bags, and their repository entry is only their own key.
type Application struct{ *notifyable.Object }

func newApplication(reg *notifyable.Registry, name, key, parentKey string) *Application {
	return &Application{Object: notifyable.NewObject(reg, key, name, notifyable.KindApplication, parentKey)}
}

func (a *Application) Initialize() error { return nil }

type Group struct{ *notifyable.Object }

func newGroup(reg *notifyable.Registry, name, key, parentKey string) *Group {
	return &Group{Object: notifyable.NewObject(reg, key, name, notifyable.KindGroup, parentKey)}
}

func (g *Group) Initialize() error { return nil }

type ProcessSlot struct{ *notifyable.Object }

func newProcessSlot(reg *notifyable.Registry, name, key, parentKey string) *ProcessSlot {
	return &ProcessSlot{Object: notifyable.NewObject(reg, key, name, notifyable.KindProcessSlot, parentKey)}
}

func (p *ProcessSlot) Initialize() error { return nil }
