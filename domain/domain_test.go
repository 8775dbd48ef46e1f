package domain_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/domain"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/queue"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

var _ = Describe("domain kinds", func() {
	var (
		st   *store.MemClient
		reg  *notifyable.Registry
		stop chan struct{}
	)

	BeforeEach(func() {
		var err error
		st, err = store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		reg = notifyable.NewRegistry(st)
		signals := signalmap.New()
		domain.RegisterAll(reg, signals)

		// Mirror the top-level clusterlib package's QUEUE_CHILD cache
		// handler (registerCacheHandlers in pathkind.go) just enough for
		// this package's own tests to exercise the blocking rendezvous
		// without pulling in the full event-dispatcher wiring.
		stop = make(chan struct{})
		go func() {
			for {
				select {
				case ev, ok := <-st.Events():
					if !ok {
						return
					}
					if queue.IsElementsDirPath(ev.Path) {
						signals.Signal(ev.Path)
					}
				case <-stop:
					return
				}
			}
		}()
	})

	AfterEach(func() {
		close(stop)
	})

	It("seeds and caches the process-wide Root exactly once", func() {
		root1, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(root1.Key()).To(Equal(notifyable.RootPath))

		root2, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(root2.Key()).To(Equal(root1.Key()))
	})

	It("creates an Application under Root via the lookup protocol", func() {
		root, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())

		completed, obj, err := reg.GetNotifyableWaitMsecs(root.Key(), notifyable.KindApplication, "myapp", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(completed).To(BeTrue())
		Expect(obj).NotTo(BeNil())
		Expect(obj.Kind()).To(Equal(notifyable.KindApplication))

		_, again, err := reg.GetNotifyableWaitMsecs(root.Key(), notifyable.KindApplication, "myapp", notifyable.CachedOnly, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(BeIdenticalTo(obj))
	})

	It("publishes a Node's current state bag after creating the Node", func() {
		root, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())
		_, appObj, err := reg.GetNotifyableWaitMsecs(root.Key(), notifyable.KindApplication, "app1", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())

		_, nodeObj, err := reg.GetNotifyableWaitMsecs(appObj.Key(), notifyable.KindNode, "node1", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		node := nodeObj.(*domain.Node)

		node.Current.SetField("status", "up")
		v, err := node.Current.Publish(false)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeNumerically(">", 0))

		reloaded, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded).NotTo(BeNil())
	})

	It("publishes and reads back a PropertyList's key/value cache", func() {
		root, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())
		_, plObj, err := reg.GetNotifyableWaitMsecs(root.Key(), notifyable.KindPropertyList, "config", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		pl := plObj.(*domain.PropertyList)

		pl.SetKey("region", "us-west")
		_, err = pl.Publish(false)
		Expect(err).NotTo(HaveOccurred())

		val, ok := pl.KeyVal.GetField("region")
		Expect(ok).To(BeTrue())
		Expect(val).To(Equal("us-west"))
	})

	It("wires Queues under a shared signal map so Put wakes a blocked Take", func() {
		root, err := domain.GetRoot(reg)
		Expect(err).NotTo(HaveOccurred())
		_, qObj, err := reg.GetNotifyableWaitMsecs(root.Key(), notifyable.KindQueue, "work", notifyable.CreateIfNotFound, 0)
		Expect(err).NotTo(HaveOccurred())
		q := qObj.(*domain.Queue)

		result := make(chan []byte, 1)
		go func() {
			_, data, err := q.Q.TakeWaitMsecs(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			result <- data
		}()

		time.Sleep(50 * time.Millisecond)
		_, err = q.Q.Put([]byte("task-1"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(result, 2*time.Second).Should(Receive(Equal([]byte("task-1"))))
	})
})
