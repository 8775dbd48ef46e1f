// Package clusterlib is the library handle spec §9 calls for: "The
// adapter, registry, and per-client event loops are per-process
// singletons. Encapsulate them in a single library handle; instantiate
// once, pass explicitly, destroy on teardown in the reverse order of
// construction."
//
// Grounded on the teacher's top-level `ais` package construction (one
// daemon-wide struct wiring its store, fs, and target registries
// together at startup) and on spec §5's explicit teardown ordering.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package clusterlib

import (
	"strings"
	"sync"
	"time"

	"github.com/clusterlib/clusterlib/client"
	"github.com/clusterlib/clusterlib/domain"
	"github.com/clusterlib/clusterlib/event"
	"github.com/clusterlib/clusterlib/lock"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/periodic"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

// Config carries the comma-separated store ensemble and the store
// session timeout; it has no separate connect-timeout setting.
type Config struct {
	// Hosts is the store ensemble, e.g. "zk1:2181,zk2:2181".
	Hosts string
	// SessionTimeout bounds the store session; zero uses a 10s default.
	SessionTimeout time.Duration
}

// Library is the process-wide handle: store adapter, notifyable
// registry, event dispatcher, periodic registry, and live client set,
// wired together once at Open and torn down in reverse order at Close.
type Library struct {
	store      store.Client
	registry   *notifyable.Registry
	dispatcher *event.Dispatcher
	periodics  *periodic.Registry
	signals    *signalmap.Map

	clientsMu sync.Mutex
	clients   map[string]*client.Client
}

// Open connects to the store, wires the registry/dispatcher/domain
// kinds together, and starts the dispatcher goroutine. Callers must
// call Close to tear everything down in the reverse order.
func Open(cfg Config) (*Library, error) {
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hosts := strings.Split(cfg.Hosts, ",")

	st, err := store.Dial(hosts, timeout)
	if err != nil {
		return nil, err
	}
	return wire(st), nil
}

// wire builds a Library over an already-connected store.Client,
// factored out of Open so tests can exercise the same wiring over
// store.NewMemClient instead of a live ensemble.
func wire(st store.Client) *Library {
	reg := notifyable.NewRegistry(st)
	signals := signalmap.New()
	domain.RegisterAll(reg, signals)

	disp := event.New(pathKind)
	registerCacheHandlers(disp, reg, signals)
	go disp.Run(st.Events())

	return &Library{
		store:      st,
		registry:   reg,
		dispatcher: disp,
		periodics:  periodic.NewRegistry(),
		signals:    signals,
		clients:    make(map[string]*client.Client),
	}
}

// Registry exposes the notifyable registry, e.g. for domain.GetRoot.
func (l *Library) Registry() *notifyable.Registry { return l.registry }

// Signals exposes the library's one process-wide signal map, for
// callers (e.g. cmd/clusterlibctl) that construct a lock.Lock or
// queue.Queue directly over an arbitrary Notifyable key rather than
// through a domain kind.
func (l *Library) Signals() *signalmap.Map { return l.signals }

// NewLock builds a Distributed Lock (C6) handle over notifyableKey,
// sharing this library's one process-wide signal map (spec §5's
// "Signal map: one lock for the table") with every other lock and
// queue it hands out.
func (l *Library) NewLock(ownerID, notifyableKey, lockName string) *lock.Lock {
	return lock.New(l.store, l.signals, ownerID, notifyableKey, lockName)
}

// NewClient mints a Client Facade (C11) registered with this library's
// dispatcher and periodic registry.
func (l *Library) NewClient(id string, queueBuffer int) *client.Client {
	c := client.New(id, l.dispatcher, l.periodics, queueBuffer)
	l.clientsMu.Lock()
	l.clients[id] = c
	l.clientsMu.Unlock()
	return c
}

// CloseClient tears down and forgets one client without affecting the
// rest of the library.
func (l *Library) CloseClient(id string) {
	l.clientsMu.Lock()
	c, ok := l.clients[id]
	delete(l.clients, id)
	l.clientsMu.Unlock()
	if ok {
		c.Close()
	}
}

// Close tears the library down in the reverse order of construction
// (spec §5): inject the end-event, discard periodics, join and discard
// every client's handler thread, unregister kinds (implicit: the
// registry is discarded with the library), disconnect the adapter.
func (l *Library) Close() error {
	l.dispatcher.Stop()
	l.periodics.Shutdown()

	l.clientsMu.Lock()
	clients := make([]*client.Client, 0, len(l.clients))
	for _, c := range l.clients {
		clients = append(clients, c)
	}
	l.clients = nil
	l.clientsMu.Unlock()
	for _, c := range clients {
		c.Close()
	}

	return l.store.Close()
}
