package queue_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/queue"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

const testKey = "/_clusterlib/_1.0/_rootDir/_applicationDir/myapp/_queueDir/q1"

var _ = Describe("Queue", func() {
	var (
		q    *queue.Queue
		stop chan struct{}
	)

	BeforeEach(func() {
		st, err := store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		signals := signalmap.New()
		q = queue.New(st, signals, testKey)

		// The production wakeup path runs a children-changed store event
		// through the event pipeline's QUEUE_CHILD cache handler, which
		// signals the waiter by path (see pathKind/registerCacheHandlers
		// in the top-level clusterlib package). Reproduce just that
		// relay here so this package's own tests can exercise the
		// blocking rendezvous without depending on the top-level wiring.
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

	It("is FIFO for put;put;take;take", func() {
		_, err := q.Put([]byte("x"))
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Put([]byte("y"))
		Expect(err).NotTo(HaveOccurred())

		v1, err := q.Take()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(v1)).To(Equal("x"))

		v2, err := q.Take()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(v2)).To(Equal("y"))
	})

	It("TakeWaitMsecs(50ms) returns false on an empty queue", func() {
		ok, _, err := q.TakeWaitMsecs(50 * time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("wakes a blocked Take once an element is put", func() {
		done := make(chan []byte, 1)
		go func() {
			v, _ := q.Take()
			done <- v
		}()

		time.Sleep(20 * time.Millisecond)
		_, err := q.Put([]byte("late"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(done, time.Second).Should(Receive(Equal([]byte("late"))))
	})

	It("Front peeks without removing", func() {
		_, err := q.Put([]byte("x"))
		Expect(err).NotTo(HaveOccurred())

		ok, v, err := q.Front()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("x"))

		size, err := q.Size()
		Expect(err).NotTo(HaveOccurred())
		Expect(size).To(Equal(1))
	})

	It("GetAllElements returns every outstanding element", func() {
		_, err := q.Put([]byte("a"))
		Expect(err).NotTo(HaveOccurred())
		id2, err := q.Put([]byte("b"))
		Expect(err).NotTo(HaveOccurred())

		all, err := q.GetAllElements()
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(string(all[id2])).To(Equal("b"))
	})
})
