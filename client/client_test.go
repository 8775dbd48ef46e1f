package client_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/client"
	"github.com/clusterlib/clusterlib/event"
	"github.com/clusterlib/clusterlib/periodic"
	"github.com/clusterlib/clusterlib/store"
)

var _ = Describe("Client", func() {
	var (
		d         *event.Dispatcher
		periodics *periodic.Registry
		raw       chan store.Event
	)

	BeforeEach(func() {
		d = event.New(func(path string) (event.ChangeKind, string, bool) {
			return event.ChangeCurrentState, path, true
		})
		d.RegisterCacheHandler(event.ChangeCurrentState, func(path string) (bool, error) {
			return true, nil
		})
		periodics = periodic.NewRegistry()
		raw = make(chan store.Event, 4)
		go d.Run(raw)
	})

	AfterEach(func() {
		d.Stop()
	})

	It("fires a first-time handler immediately and then on matching future events", func() {
		c := client.New("cli1", d, periodics, 8)
		defer c.Close()

		fired := make(chan string, 4)
		c.RegisterFirstTimeHandler("/app/1", event.EventCurrentStateChange, func(path string, mask event.UserEventMask) {
			fired <- "first:" + path
		})

		Eventually(fired, time.Second).Should(Receive(Equal("first:/app/1")))

		raw <- store.Event{Type: store.EventNodeDataChanged, Path: "/app/1"}
		Eventually(fired, time.Second).Should(Receive(Equal("first:/app/1")))
	})

	It("only invokes handlers whose mask intersects the fired event", func() {
		c := client.New("cli2", d, periodics, 8)
		defer c.Close()

		fired := make(chan event.UserEventMask, 4)
		c.RegisterHandler("/app/2", event.EventDesiredStateChange, func(path string, mask event.UserEventMask) {
			fired <- mask
		})

		raw <- store.Event{Type: store.EventNodeDataChanged, Path: "/app/2"}
		Consistently(fired, 300*time.Millisecond).ShouldNot(Receive())
	})

	It("exits its handler thread on the END sentinel", func() {
		c := client.New("cli3", d, periodics, 8)
		d.Stop()
		done := make(chan struct{})
		go func() {
			c.Close()
			close(done)
		}()
		Eventually(done, time.Second).Should(BeClosed())
	})

	It("runs and cancels a one-shot timer", func() {
		c := client.New("cli4", d, periodics, 8)
		defer c.Close()

		fired := make(chan struct{}, 1)
		id := c.RegisterTimer(func() { fired <- struct{}{} }, 20)
		Eventually(fired, time.Second).Should(Receive())
		Expect(c.CancelTimer(id)).NotTo(HaveOccurred())
		Expect(c.CancelTimer(id)).To(HaveOccurred())
	})

	It("mints increasing per-client RPC ids", func() {
		c := client.New("cli5", d, periodics, 8)
		defer c.Close()

		a := c.NextRPCID("owner1")
		b := c.NextRPCID("owner1")
		Expect(a).NotTo(Equal(b))
	})
})
