package rpc

import (
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/internal/codec"
	"github.com/clusterlib/clusterlib/queue"
)

// MethodFunc is a server-side RPC method: given the decoded params
// array, return a JSON-marshalable result or an error (spec §4.8
// step 4: "wrap any thrown exception into an error response").
type MethodFunc func(params []interface{}) (result interface{}, err error)

// Manager is the server side of C8 (spec §4.8's JSONRPCManager): a
// name->method table plus a default completed-queue for envelopes that
// have nowhere else to go.
type Manager struct {
	methods        map[string]MethodFunc
	completedQueue *queue.Queue
	statusList     StatusSetter
	completedMax   int
}

// StatusSetter is the minimal contract Manager needs from a status
// property-list (spec §4.8 step 3: "Optionally update a status
// property-list with 'starting'"); package domain's PropertyList
// satisfies it.
type StatusSetter interface {
	SetKey(key string, value interface{})
	Publish(unconditional bool) (int64, error)
}

// NewManager builds a Manager with the built-in methods pre-registered
// (spec §6's _startProcess/_stopProcess/_stopActiveNode/_generic).
func NewManager(completedQueue *queue.Queue, completedMax int) *Manager {
	m := &Manager{
		methods:        make(map[string]MethodFunc),
		completedQueue: completedQueue,
		completedMax:   completedMax,
	}
	for name, fn := range BuiltinMethods() {
		m.methods[name] = fn
	}
	return m
}

// RegisterMethod installs or overrides a method by name.
func (m *Manager) RegisterMethod(name string, fn MethodFunc) {
	m.methods[name] = fn
}

func (m *Manager) SetStatusList(s StatusSetter) { m.statusList = s }

// completedEnvelope is the "[response, msecs, dateString]" triple spec
// §4.8 step 5 describes.
type completedEnvelope struct {
	Response Response `json:"response"`
	Msecs    int64    `json:"msecs"`
	Date     string   `json:"date"`
}

// MarshalJSON encodes the envelope as that three-element array.
func (e completedEnvelope) MarshalJSON() ([]byte, error) {
	return codec.MarshalErr([]interface{}{e.Response, e.Msecs, e.Date})
}

// InvokeAndResp implements spec §4.8's invokeAndResp: decode, validate
// shape, dispatch, build the response/envelope, and route them per
// whether the request carries a response-queue key.
func (m *Manager) InvokeAndResp(raw []byte, openRespQueue func(key string) (*queue.Queue, error)) error {
	var req Request
	if err := codec.Unmarshal(raw, &req); err != nil {
		return m.respondError("", "malformed request: "+err.Error(), openRespQueue, nil)
	}
	if err := validateRequestShape(raw); err != nil {
		return m.respondError(req.ID, err.Error(), openRespQueue, nil)
	}

	fn, ok := m.methods[req.Method]
	if !ok {
		return m.deliver(Response{ID: req.ID, Error: "unknown method: " + req.Method}, time.Now(), extractRespQueueKey(req.Params), openRespQueue)
	}

	if m.statusList != nil {
		m.statusList.SetKey("status", "starting")
		m.statusList.Publish(true)
	}

	start := time.Now()
	result, err := m.invoke(fn, req.Params)
	resp := Response{ID: req.ID}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = result
	}

	respQueueKey := extractRespQueueKey(req.Params)
	return m.deliver(resp, start, respQueueKey, openRespQueue)
}

// invoke wraps the method call so a panicking handler becomes an
// error response instead of taking the server down (spec §4.8 step 4).
func (m *Manager) invoke(fn MethodFunc, params []interface{}) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = cerrors.JSONRPCInvocation(fmtPanic(p))
		}
	}()
	return fn(params)
}

func fmtPanic(p interface{}) string {
	if e, ok := p.(error); ok {
		return e.Error()
	}
	return "panic in rpc method"
}

func (m *Manager) respondError(id, msg string, openRespQueue func(key string) (*queue.Queue, error), _ interface{}) error {
	resp := Response{ID: id, Error: msg}
	return m.deliver(resp, time.Now(), "", openRespQueue)
}

func (m *Manager) deliver(resp Response, start time.Time, respQueueKey string, openRespQueue func(key string) (*queue.Queue, error)) error {
	envelope := completedEnvelope{Response: resp, Msecs: time.Since(start).Milliseconds(), Date: time.Now().UTC().Format(time.RFC3339)}

	if respQueueKey != "" && openRespQueue != nil {
		q, err := openRespQueue(respQueueKey)
		if err == nil {
			if _, perr := q.Put(codec.Marshal(resp)); perr != nil {
				glog.Errorf("rpc: deliver response to %s: %v", respQueueKey, perr)
			}
			m.logCompleted(envelope)
			return nil
		}
		glog.Errorf("rpc: cannot open response queue %s: %v", respQueueKey, err)
	}
	m.logCompleted(envelope)
	return nil
}

// logCompleted puts envelope on the default completed queue, trimming
// it to completedMax on a best-effort basis (spec §4.8 step 6).
func (m *Manager) logCompleted(envelope completedEnvelope) {
	if m.completedQueue == nil {
		return
	}
	if _, err := m.completedQueue.Put(codec.Marshal(envelope)); err != nil {
		glog.Errorf("rpc: log completed envelope: %v", err)
		return
	}
	if m.completedMax <= 0 {
		return
	}
	size, err := m.completedQueue.Size()
	if err != nil {
		return
	}
	for size > m.completedMax {
		if ok, _, terr := m.completedQueue.TakeWaitMsecs(0); terr != nil || !ok {
			break
		}
		size--
	}
}

func extractRespQueueKey(params []interface{}) string {
	if len(params) == 0 {
		return ""
	}
	m, ok := params[0].(map[string]interface{})
	if !ok {
		return ""
	}
	key, _ := m[ParamRespQueueKey].(string)
	return key
}

// validateRequestShape enforces spec §6's "exactly three keys" rule
// for the request envelope.
func validateRequestShape(raw []byte) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return cerrors.InvalidArguments("request is not a JSON object: %v", err)
	}
	for _, required := range []string{"method", "params", "id"} {
		if _, ok := generic[required]; !ok {
			return cerrors.InvalidArguments("request missing required key %q", required)
		}
	}
	if len(generic) != 3 {
		return cerrors.InvalidArguments("request must carry exactly method, params, id")
	}
	return nil
}

// BuiltinMethods returns the process-lifecycle methods spec §6 names;
// a feature the distilled spec only named, not specified, so behavior
// here is intentionally minimal: each reports back what it was asked
// to do, leaving the actual OS-level process management to the
// embedding application (supplementing the distilled spec, see the
// expanded spec's built-in RPC methods section).
func BuiltinMethods() map[string]MethodFunc {
	return map[string]MethodFunc{
		MethodStartProcess: func(params []interface{}) (interface{}, error) {
			return genericAck(MethodStartProcess, params)
		},
		MethodStopProcess: func(params []interface{}) (interface{}, error) {
			return genericAck(MethodStopProcess, params)
		},
		MethodStopActiveNode: func(params []interface{}) (interface{}, error) {
			return genericAck(MethodStopActiveNode, params)
		},
		MethodGeneric: func(params []interface{}) (interface{}, error) {
			return genericAck(MethodGeneric, params)
		},
	}
}

func genericAck(method string, params []interface{}) (interface{}, error) {
	return map[string]interface{}{"method": method, "received": params}, nil
}
