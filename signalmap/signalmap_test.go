package signalmap_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/signalmap"
)

var _ = Describe("Map", func() {
	It("wakes a waiter once signaled", func() {
		m := signalmap.New()
		m.AddRef("k")
		defer m.Release("k")

		done := make(chan bool, 1)
		go func() {
			done <- m.WaitUsecs("k", -1)
		}()

		time.Sleep(20 * time.Millisecond)
		m.Signal("k")

		Eventually(done, time.Second).Should(Receive(BeTrue()))
	})

	It("times out when never signaled", func() {
		m := signalmap.New()
		m.AddRef("k")
		defer m.Release("k")

		start := time.Now()
		ok := m.WaitUsecs("k", 50*time.Millisecond)
		Expect(ok).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically(">=", 45*time.Millisecond))
	})

	It("erases the entry once every ref is released", func() {
		m := signalmap.New()
		m.AddRef("k")
		m.AddRef("k")
		Expect(m.Len()).To(Equal(1))
		m.Release("k")
		Expect(m.Len()).To(Equal(1))
		m.Release("k")
		Expect(m.Len()).To(Equal(0))
	})

	It("try-once WaitUsecs(0) never blocks", func() {
		m := signalmap.New()
		m.AddRef("k")
		defer m.Release("k")
		Expect(m.WaitUsecs("k", 0)).To(BeFalse())
		m.Signal("k")
		Expect(m.WaitUsecs("k", 0)).To(BeTrue())
	})

	It("Signal on an unreferenced key is a no-op", func() {
		m := signalmap.New()
		Expect(func() { m.Signal("ghost") }).NotTo(Panic())
	})
})
