package rpc_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/internal/codec"
	"github.com/clusterlib/clusterlib/queue"
	"github.com/clusterlib/clusterlib/rpc"
	"github.com/clusterlib/clusterlib/signalmap"
	"github.com/clusterlib/clusterlib/store"
)

const (
	destKey = "/_clusterlib/_1.0/_rootDir/_applicationDir/myapp/_queueDir/recv"
	respKey = "/_clusterlib/_1.0/_rootDir/_applicationDir/myapp/_queueDir/resp"
)

var _ = Describe("JSON-RPC", func() {
	It("round-trips an echo request through dest and response queues", func() {
		st, err := store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		signals := signalmap.New()

		queues := map[string]*queue.Queue{
			destKey: queue.New(st, signals, destKey),
			respKey: queue.New(st, signals, respKey),
		}
		opener := func(key string) (*queue.Queue, error) { return queues[key], nil }

		requester := rpc.NewRequester(opener, signals, "client1")
		manager := rpc.NewManager(nil, 0)
		manager.RegisterMethod("echo", func(params []interface{}) (interface{}, error) {
			return params, nil
		})

		id, err := requester.Send(destKey, "echo", []interface{}{"hi"}, respKey)
		Expect(err).NotTo(HaveOccurred())

		stop := make(chan struct{})
		defer close(stop)
		go requester.RunResponseDispatcher(queues[respKey], nil, stop)

		raw, err := queues[destKey].Take()
		Expect(err).NotTo(HaveOccurred())
		Expect(manager.InvokeAndResp(raw, opener)).To(Succeed())

		ok, err := requester.WaitMsecsResponse(id, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		resp, ok := requester.Response(id)
		Expect(ok).To(BeTrue())
		Expect(resp.ID).To(Equal(id))
		Expect(resp.Error).To(BeNil())
	})

	It("returns an error response for an unknown method", func() {
		st, err := store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		signals := signalmap.New()
		q := queue.New(st, signals, destKey)
		respQ := queue.New(st, signals, respKey)
		opener := func(key string) (*queue.Queue, error) {
			if key == respKey {
				return respQ, nil
			}
			return q, nil
		}

		requester := rpc.NewRequester(opener, signals, "client1")
		manager := rpc.NewManager(nil, 0)

		id, err := requester.Send(destKey, "no_such_method", nil, respKey)
		Expect(err).NotTo(HaveOccurred())

		raw, err := q.Take()
		Expect(err).NotTo(HaveOccurred())
		Expect(manager.InvokeAndResp(raw, opener)).To(Succeed())

		payload, err := respQ.Take()
		Expect(err).NotTo(HaveOccurred())

		// Decode directly rather than via the dispatcher goroutine, to
		// keep this assertion about the server's error shape only.
		var resp rpc.Response
		Expect(codec.Unmarshal(payload, &resp)).To(Succeed())
		Expect(resp.ID).To(Equal(id))
		Expect(resp.Error).NotTo(BeNil())
	})
})
