// Package rpc implements the JSON-RPC messaging layer (spec §4.8,
// component C8): request construction/id correlation on the client
// side, transported over [[queue]]; method dispatch on the server
// side; and the client-side response-dispatch handler that drains a
// response queue and wakes waiters via [[signalmap]].
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/internal/codec"
	"github.com/clusterlib/clusterlib/queue"
)

// Reserved parameter-object keys (spec §6).
const (
	ParamRespQueueKey  = "_respQueueKey"
	ParamNotifyableKey = "_notifyableKey"
	ParamMethod        = "_method"
	ParamEnv           = "_env"
	ParamPath          = "_path"
	ParamCommand       = "_command"
	ParamSignal        = "_signal"
	ParamTime          = "_time"
)

// Built-in method names (spec §6).
const (
	MethodStartProcess    = "_startProcess"
	MethodStopProcess     = "_stopProcess"
	MethodStopActiveNode  = "_stopActiveNode"
	MethodGeneric         = "_generic"
)

// Request is the JSON-RPC 1.0 shaped envelope a client sends (spec
// §4.8): exactly {method, params, id}.
type Request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     string        `json:"id"`
}

// Response is the envelope a server returns (spec §4.8/§6): exactly
// {result, error, id}.
type Response struct {
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
	ID     string      `json:"id"`
}

// idCounter is process-wide so ids are unique across every Requester
// sharing an owner identity, mirroring spec §6's
// "<hostname>.pid.<pid>.tid.<tid><counter>" shape.
var idCounter atomic.Int64

// NewID mints a process-unique request id.
func NewID(ownerID string) string {
	return fmt.Sprintf("%s%d", ownerID, idCounter.Inc())
}

// QueueOpener resolves a destination queue key to a Queue handle; the
// Client Facade (C11) supplies this so package rpc never constructs
// Notifyable keys itself.
type QueueOpener func(destQueueKey string) (*queue.Queue, error)

// Requester is the client side of C8: it sends requests and correlates
// responses via a signal-map slot per outstanding id.
type Requester struct {
	openQueue QueueOpener
	signals   signaler
	ownerID   string

	mu        sync.Mutex
	responses map[string]Response
}

// signaler is the subset of *signalmap.Map the Requester needs; kept
// as an interface so tests can substitute a fake.
type signaler interface {
	AddRef(key string)
	Release(key string)
	Signal(key string)
	WaitUsecs(key string, timeout time.Duration) bool
}

func NewRequester(openQueue QueueOpener, signals signaler, ownerID string) *Requester {
	return &Requester{openQueue: openQueue, signals: signals, ownerID: ownerID, responses: make(map[string]Response)}
}

// Send implements spec §4.8's send protocol and returns the minted
// request id to later pass to WaitMsecsResponse.
func (r *Requester) Send(destQueueKey, method string, params []interface{}, respQueueKey string) (string, error) {
	q, err := r.openQueue(destQueueKey)
	if err != nil {
		return "", cerrors.InvalidArguments("invalid destination queue %q: %v", destQueueKey, err)
	}

	id := NewID(r.ownerID)
	r.signals.AddRef(id)

	if respQueueKey != "" {
		params = injectRespQueueKey(params, respQueueKey)
	}

	req := Request{Method: method, Params: params, ID: id}
	payload := codec.Marshal(req)
	if _, err := q.Put(payload); err != nil {
		r.signals.Release(id)
		return "", cerrors.Wrap(cerrors.KindRepositoryInternals, destQueueKey, err)
	}
	return id, nil
}

func injectRespQueueKey(params []interface{}, respQueueKey string) []interface{} {
	out := make([]interface{}, len(params))
	copy(out, params)
	entry := map[string]interface{}{ParamRespQueueKey: respQueueKey}
	if len(out) > 0 {
		if m, ok := out[0].(map[string]interface{}); ok {
			m[ParamRespQueueKey] = respQueueKey
			return out
		}
	}
	return append([]interface{}{entry}, out...)
}

// WaitMsecsResponse implements spec §4.8's wait protocol: blocks on
// id's signal-map slot, then consumes and releases it.
func (r *Requester) WaitMsecsResponse(id string, timeout time.Duration) (bool, error) {
	ok := r.signals.WaitUsecs(id, timeout)
	r.signals.Release(id)
	if !ok {
		return false, nil
	}
	r.mu.Lock()
	_, has := r.responses[id]
	r.mu.Unlock()
	if !has {
		return false, cerrors.InconsistentInternalState("signal fired for id %s but no response stored", id)
	}
	return true, nil
}

// Response returns the stored response for id; callers must have
// received true from a prior WaitMsecsResponse(id, ...).
func (r *Requester) Response(id string) (Response, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[id]
	if ok {
		delete(r.responses, id)
	}
	return resp, ok
}

// setIDResponse is called by the response-dispatch handler once it
// decodes a response off the response queue (spec §4.8 "Response
// dispatch").
func (r *Requester) setIDResponse(resp Response) {
	r.mu.Lock()
	r.responses[resp.ID] = resp
	r.mu.Unlock()
	r.signals.Signal(resp.ID)
}

// RunResponseDispatcher drains respQueueKey with a short per-take
// timeout until stop is closed, storing each decoded response and
// signaling its id's slot (spec §4.8's built-in response handler).
// Malformed entries are diverted to completedQueue if non-nil.
func (r *Requester) RunResponseDispatcher(respQueue *queue.Queue, completedQueue *queue.Queue, stop <-chan struct{}) {
	const pollTimeout = 200 * time.Millisecond
	for {
		select {
		case <-stop:
			return
		default:
		}
		ok, payload, err := respQueue.TakeWaitMsecs(pollTimeout)
		if err != nil {
			glog.Errorf("rpc: response dispatcher take: %v", err)
			continue
		}
		if !ok {
			continue
		}
		var resp Response
		if err := codec.Unmarshal(payload, &resp); err != nil || resp.ID == "" {
			glog.Warningf("rpc: malformed response payload, diverting to completed queue: %v", err)
			if completedQueue != nil {
				completedQueue.Put(payload)
			}
			continue
		}
		r.setIDResponse(resp)
	}
}

// Progress reports bulk-request outcome counts to a caller-supplied
// callback during WaitAll polling (a feature the distilled spec
// omitted; see the expanded spec's bulk-request progress section).
type Progress struct {
	Total     int
	Completed int
	Errored   int
	Elapsed   time.Duration
}

// Bulk manages a set of outstanding requests sent together (spec
// §4.8's "Bulk requests").
type Bulk struct {
	r   *Requester
	ids []string
}

func NewBulk(r *Requester) *Bulk { return &Bulk{r: r} }

// SendAll sends every request in reqs to its destination queue.
func (b *Bulk) SendAll(reqs []struct {
	DestQueueKey string
	Method       string
	Params       []interface{}
	RespQueueKey string
}) error {
	for _, req := range reqs {
		id, err := b.r.Send(req.DestQueueKey, req.Method, req.Params, req.RespQueueKey)
		if err != nil {
			return err
		}
		b.ids = append(b.ids, id)
	}
	return nil
}

// WaitAll polls outstanding requests until totalDeadline, sleeping
// pollInterval between sweeps, invoking progress after each sweep. It
// fails if any request came back with a non-null error field.
func (b *Bulk) WaitAll(totalDeadline, perReqDeadline, pollInterval time.Duration, progress func(Progress)) error {
	start := time.Now()
	remainingIDs := append([]string(nil), b.ids...)
	completed := 0
	errored := 0

	for len(remainingIDs) > 0 && time.Since(start) < totalDeadline {
		next := remainingIDs[:0]
		for _, id := range remainingIDs {
			ok, err := b.r.WaitMsecsResponse(id, perReqDeadline)
			if err != nil {
				return err
			}
			if !ok {
				next = append(next, id)
				continue
			}
			resp, _ := b.r.Response(id)
			completed++
			if resp.Error != nil {
				errored++
			}
		}
		remainingIDs = next
		if progress != nil {
			progress(Progress{Total: len(b.ids), Completed: completed, Errored: errored, Elapsed: time.Since(start)})
		}
		if len(remainingIDs) > 0 {
			time.Sleep(pollInterval)
		}
	}
	if len(remainingIDs) > 0 {
		return cerrors.SystemFailure("bulk request wait deadline exceeded with %d outstanding", len(remainingIDs))
	}
	if errored > 0 {
		return cerrors.JSONRPCInvocation(fmt.Sprintf("%d of %d bulk requests returned an error", errored, len(b.ids)))
	}
	return nil
}
