package clusterlib

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/domain"
	"github.com/clusterlib/clusterlib/event"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/store"
)

var _ = Describe("Library", func() {
	var lib *Library

	BeforeEach(func() {
		st, err := store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		lib = wire(st)
	})

	AfterEach(func() {
		Expect(lib.Close()).NotTo(HaveOccurred())
	})

	It("creates domain kinds through the wired registry", func() {
		root, err := domain.GetRoot(lib.Registry())
		Expect(err).NotTo(HaveOccurred())

		_, obj, err := lib.Registry().GetNotifyableWaitMsecs(root.Key(), notifyable.KindApplication, "app1", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(obj).NotTo(BeNil())
	})

	It("fans a Current-state change out to a registered client handler", func() {
		root, err := domain.GetRoot(lib.Registry())
		Expect(err).NotTo(HaveOccurred())
		_, appObj, err := lib.Registry().GetNotifyableWaitMsecs(root.Key(), notifyable.KindApplication, "app2", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		_, nodeObj, err := lib.Registry().GetNotifyableWaitMsecs(appObj.Key(), notifyable.KindNode, "node1", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		node := nodeObj.(*domain.Node)

		c := lib.NewClient("observer", 8)
		defer lib.CloseClient("observer")

		fired := make(chan string, 1)
		c.RegisterFirstTimeHandler(node.Key(), event.EventCurrentStateChange, func(path string, mask event.UserEventMask) {})
		c.RegisterHandler(node.Key(), event.EventCurrentStateChange, func(path string, mask event.UserEventMask) {
			fired <- path
		})

		node.Current.SetField("status", "up")
		_, err = node.Current.Publish(false)
		Expect(err).NotTo(HaveOccurred())

		Eventually(fired, time.Second).Should(Receive(Equal(node.Key())))
	})

	It("wakes a blocked queue Take through the fully-wired dispatcher", func() {
		root, err := domain.GetRoot(lib.Registry())
		Expect(err).NotTo(HaveOccurred())
		_, qObj, err := lib.Registry().GetNotifyableWaitMsecs(root.Key(), notifyable.KindQueue, "jobs", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		q := qObj.(*domain.Queue)

		result := make(chan []byte, 1)
		go func() {
			_, data, terr := q.Q.TakeWaitMsecs(2 * time.Second)
			Expect(terr).NotTo(HaveOccurred())
			result <- data
		}()

		time.Sleep(50 * time.Millisecond)
		_, err = q.Q.Put([]byte("task-1"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(result, 2*time.Second).Should(Receive(Equal([]byte("task-1"))))
	})

	It("closes clients and periodics in teardown without hanging", func() {
		c := lib.NewClient("short-lived", 4)
		id := c.RegisterTimer(func() {}, 5000)
		Expect(lib.Close()).NotTo(HaveOccurred())
		// Close already tore down periodics; a post-Close cancel on a
		// timer that outlived its registry reports "not found" rather
		// than panicking.
		Expect(c.CancelTimer(id)).To(HaveOccurred())
		// Reassign so AfterEach closes a fresh library instead of this
		// already-closed one.
		st, err := store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		lib = wire(st)
	})
})
