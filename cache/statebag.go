package cache

import (
	"time"

	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/internal/codec"
	"github.com/clusterlib/clusterlib/store"
)

// Reserved keys every history entry carries (spec §6).
const (
	keySetMsecs       = "_setMsecs"
	keySetMsecsAsDate = "_setMsecsAsDate"
)

const defaultMaxHistory = 5

// StateBag is the history-tracking specialization of Object (spec
// §4.4): current-state and desired-state both hold a mapping plus a
// bounded-length FIFO of previous mappings, each annotated with
// set-time.
//
// Design decision (spec §9 open question): history is prepended only
// on a *successful* publish; a failed conditional write leaves history
// untouched, since prepending unconditionally would leak entries
// across retries.
type StateBag struct {
	*Object

	maxHistory int
	history    []map[string]interface{}
}

func NewStateBag(st store.Client, path string) *StateBag {
	return &StateBag{Object: New(st, path), maxHistory: defaultMaxHistory}
}

// SetMaxHistorySize bounds the retained history length; n must be ≥1.
func (s *StateBag) SetMaxHistorySize(n int) error {
	if n < 1 {
		return cerrors.InvalidArguments("history size must be >= 1, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxHistory = n
	if len(s.history) > n {
		s.history = s.history[:n]
	}
	return nil
}

func (s *StateBag) GetHistorySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// GetHistory returns the value of key in the i-th historical mapping
// (0 is the most recent entry prepended to history, i.e. the mapping
// in effect just before the current one).
func (s *StateBag) GetHistory(i int, key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.history) {
		return nil, false
	}
	v, ok := s.history[i][key]
	return v, ok
}

func (s *StateBag) GetHistoryKeys(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.history) {
		return nil
	}
	keys := make([]string, 0, len(s.history[i]))
	for k := range s.history[i] {
		keys = append(keys, k)
	}
	return keys
}

// GetHistoryArray returns the full JSON schema spec §6 describes:
// element 0 is the current mapping, subsequent elements are history.
func (s *StateBag) GetHistoryArray() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, 0, 1+len(s.history))
	out = append(out, cloneMap(s.value))
	out = append(out, s.history...)
	return out
}

// encode produces what goes over the wire: spec §6's array of
// mappings, current first.
func (s *StateBag) encode() []byte {
	return codec.Marshal(s.GetHistoryArray())
}

// Publish overrides Object.Publish to use the array wire schema and to
// prepend the pre-publish current mapping to history only on success.
func (s *StateBag) Publish(unconditional bool) (int64, error) {
	s.mu.Lock()
	now := time.Now()
	s.value[keySetMsecs] = now.UnixNano() / int64(time.Millisecond)
	s.value[keySetMsecsAsDate] = now.UTC().Format(time.RFC3339)
	payload := s.encode()
	expected := s.version
	if unconditional {
		expected = store.VersionAny
	}
	prePublish := cloneMap(s.value)
	s.mu.Unlock()

	stat, err := s.st.SetNodeData(s.path, payload, expected)
	if err != nil {
		if cerrors.Is(err, cerrors.KindPublishVersion) {
			return 0, cerrors.PublishVersion(s.path)
		}
		return 0, cerrors.Wrap(cerrors.KindRepositoryInternals, s.path, err)
	}

	s.mu.Lock()
	s.version = stat.Version
	s.stat = *stat
	s.history = append([]map[string]interface{}{prePublish}, s.history...)
	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
	s.mu.Unlock()
	return stat.Version, nil
}

// LoadFromRepository overrides Object.LoadFromRepository to decode the
// array wire schema into current value + history.
func (s *StateBag) LoadFromRepository(setWatchesOnly bool) error {
	raw, stat, err := s.st.GetNodeData(s.path, store.WithWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return nil
		}
		return cerrors.Wrap(cerrors.KindRepositoryInternals, s.path, err)
	}
	if setWatchesOnly {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != VersionInitial && stat.Version <= s.version {
		if stat.Version < s.version {
			return cerrors.InconsistentInternalState("state bag %s: incoming version %d < local %d", s.path, stat.Version, s.version)
		}
		return nil
	}

	var arr []map[string]interface{}
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &arr); err != nil {
			return cerrors.Wrap(cerrors.KindRepositoryInternals, s.path, err)
		}
	}
	if len(arr) > 0 {
		s.value = arr[0]
		s.history = arr[1:]
	} else {
		s.value = make(map[string]interface{})
		s.history = nil
	}
	s.version = stat.Version
	s.stat = *stat
	return nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
