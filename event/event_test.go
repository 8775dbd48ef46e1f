package event_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/event"
	"github.com/clusterlib/clusterlib/store"
)

var _ = Describe("Dispatcher", func() {
	It("routes a recognized path to its cache handler and fans out the event", func() {
		called := make(chan string, 1)
		d := event.New(func(path string) (event.ChangeKind, string, bool) {
			return event.ChangeCurrentState, path, true
		})
		d.RegisterCacheHandler(event.ChangeCurrentState, func(path string) (bool, error) {
			called <- path
			return true, nil
		})
		ch := d.RegisterClient("c1", 4)

		raw := make(chan store.Event, 1)
		go d.Run(raw)
		raw <- store.Event{Type: store.EventNodeDataChanged, Path: "/some/path"}

		Eventually(called, time.Second).Should(Receive(Equal("/some/path")))
		Eventually(ch, time.Second).Should(Receive(Equal(event.UserEvent{Path: "/some/path", Mask: event.EventCurrentStateChange})))

		d.Stop()
		Eventually(ch, time.Second).Should(Receive(Equal(event.UserEvent{Mask: event.EventEnd})))
	})

	It("ignores paths the router does not recognize", func() {
		d := event.New(func(path string) (event.ChangeKind, string, bool) {
			return 0, "", false
		})
		ch := d.RegisterClient("c1", 4)
		raw := make(chan store.Event, 1)
		go d.Run(raw)
		raw <- store.Event{Type: store.EventNodeDataChanged, Path: "/unrelated"}

		Consistently(ch, 100*time.Millisecond).ShouldNot(Receive())
		d.Stop()
	})

	It("broadcasts END when the store session expires", func() {
		d := event.New(func(path string) (event.ChangeKind, string, bool) {
			return 0, "", false
		})
		ch := d.RegisterClient("c1", 4)
		raw := make(chan store.Event, 1)
		go d.Run(raw)
		raw <- store.Event{Type: store.EventSession, State: store.StateSessionExpired}

		Eventually(ch, time.Second).Should(Receive(Equal(event.UserEvent{Mask: event.EventEnd})))
	})
})
