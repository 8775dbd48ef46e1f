package cache_test

import (
	"testing"

	"github.com/clusterlib/clusterlib/cache"
	"github.com/clusterlib/clusterlib/store"
)

const stateBagPath = "/_clusterlib/_1.0/_rootDir/_applicationDir/myapp/_currentStateJsonValue"

func TestStateBagHistoryHoldsPreviousMappings(t *testing.T) {
	st := newTestStore2(t)
	sb := cache.NewStateBag(st, stateBagPath)
	if err := sb.SetMaxHistorySize(2); err != nil {
		t.Fatalf("SetMaxHistorySize: %v", err)
	}

	sb.SetField("phase", "init")
	if _, err := sb.Publish(false); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	if sb.GetHistorySize() != 0 {
		t.Fatalf("first publish should have no prior state to prepend, got history size %d", sb.GetHistorySize())
	}

	sb.SetField("phase", "running")
	if _, err := sb.Publish(false); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	if sb.GetHistorySize() != 1 {
		t.Fatalf("expected history size 1 after second publish, got %d", sb.GetHistorySize())
	}
	v, ok := sb.GetHistory(0, "phase")
	if !ok || v != "init" {
		t.Errorf("expected history[0].phase == init, got %v, %v", v, ok)
	}
}

func TestStateBagHistoryTruncation(t *testing.T) {
	st := newTestStore2(t)
	sb := cache.NewStateBag(st, stateBagPath)
	if err := sb.SetMaxHistorySize(1); err != nil {
		t.Fatalf("SetMaxHistorySize: %v", err)
	}
	for i := 0; i < 4; i++ {
		sb.SetField("n", i)
		if _, err := sb.Publish(false); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if sb.GetHistorySize() != 1 {
		t.Errorf("expected history truncated to 1, got %d", sb.GetHistorySize())
	}
}

func newTestStore2(t *testing.T) store.Client {
	t.Helper()
	st, err := store.NewMemClient()
	if err != nil {
		t.Fatalf("NewMemClient: %v", err)
	}
	if _, err := st.CreateNode(stateBagPath, nil, store.FlagNone); err != nil {
		t.Fatalf("seed node: %v", err)
	}
	return st
}
