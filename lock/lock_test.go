package lock_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/lock"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

const testKey = "/_clusterlib/_1.0/_rootDir/_applicationDir/myapp"

var _ = Describe("Lock", func() {
	var (
		st      store.Client
		signals *signalmap.Map
	)

	BeforeEach(func() {
		mc, err := store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		_, err = mc.CreateNode(testKey, nil, store.FlagNone)
		Expect(err).NotTo(HaveOccurred())
		st = mc
		signals = signalmap.New()
	})

	It("grants an uncontested EXCLUSIVE acquire and re-enters on repeat acquire", func() {
		l := lock.New(st, signals, "owner-a", testKey, "mylock")
		ok, err := l.AcquireWaitUsecs(time.Second, lock.Exclusive)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok2, err2 := l.AcquireWaitUsecs(time.Second, lock.Exclusive)
		Expect(err2).NotTo(HaveOccurred())
		Expect(ok2).To(BeTrue())

		info, held := l.GetInfo()
		Expect(held).To(BeTrue())
		Expect(info.RefCount).To(Equal(2))

		Expect(l.Release()).To(Succeed())
		Expect(l.HasLock()).To(BeTrue())
		Expect(l.Release()).To(Succeed())
		Expect(l.HasLock()).To(BeFalse())
	})

	It("blocks a second EXCLUSIVE acquirer until the first releases", func() {
		a := lock.New(st, signals, "owner-a", testKey, "mylock")
		b := lock.New(st, signals, "owner-b", testKey, "mylock")

		ok, err := a.AcquireWaitUsecs(time.Second, lock.Exclusive)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		failFast, err := b.AcquireWaitUsecs(100*time.Millisecond, lock.Exclusive)
		Expect(err).NotTo(HaveOccurred())
		Expect(failFast).To(BeFalse())

		done := make(chan bool, 1)
		go func() {
			ok, _ := b.AcquireWaitUsecs(-1, lock.Exclusive)
			done <- ok
		}()

		time.Sleep(20 * time.Millisecond)
		Expect(a.Release()).To(Succeed())

		Eventually(done, time.Second).Should(Receive(BeTrue()))
	})

	It("allows concurrent SHARED holders but blocks an EXCLUSIVE requester", func() {
		a := lock.New(st, signals, "owner-a", testKey, "mylock")
		b := lock.New(st, signals, "owner-b", testKey, "mylock")
		c := lock.New(st, signals, "owner-c", testKey, "mylock")

		okA, err := a.AcquireWaitUsecs(time.Second, lock.Shared)
		Expect(err).NotTo(HaveOccurred())
		Expect(okA).To(BeTrue())

		okB, err := b.AcquireWaitUsecs(time.Second, lock.Shared)
		Expect(err).NotTo(HaveOccurred())
		Expect(okB).To(BeTrue())

		done := make(chan bool, 1)
		go func() {
			ok, _ := c.AcquireWaitUsecs(-1, lock.Exclusive)
			done <- ok
		}()

		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

		Expect(a.Release()).To(Succeed())
		Expect(b.Release()).To(Succeed())

		Eventually(done, time.Second).Should(Receive(BeTrue()))
	})
})
