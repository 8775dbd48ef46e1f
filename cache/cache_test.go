package cache_test

import (
	"testing"

	"github.com/clusterlib/clusterlib/cache"
	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/store"
)

const testPath = "/_clusterlib/_1.0/_rootDir/_applicationDir/myapp/_propertyListDir/pl1/_keyvalJsonObject"

func newTestStore(t *testing.T) store.Client {
	t.Helper()
	st, err := store.NewMemClient()
	if err != nil {
		t.Fatalf("NewMemClient: %v", err)
	}
	if _, err := st.CreateNode(testPath, []byte("{}"), store.FlagNone); err != nil {
		t.Fatalf("seed node: %v", err)
	}
	return st
}

func TestPublishIncrementsVersion(t *testing.T) {
	st := newTestStore(t)
	obj := cache.New(st, testPath)
	if err := obj.LoadFromRepository(false); err != nil {
		t.Fatalf("LoadFromRepository: %v", err)
	}

	obj.SetField("k", "v1")
	v1, err := obj.Publish(false)
	if err != nil {
		t.Fatalf("Publish 1: %v", err)
	}

	obj.SetField("k", "v2")
	v2, err := obj.Publish(false)
	if err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("expected version to strictly increase, got %d then %d", v1, v2)
	}
}

func TestPublishVersionRace(t *testing.T) {
	st := newTestStore(t)
	obj := cache.New(st, testPath)
	if err := obj.LoadFromRepository(false); err != nil {
		t.Fatalf("LoadFromRepository: %v", err)
	}
	obj.SetField("k", "v1")
	if _, err := obj.Publish(false); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Simulate an external writer bumping the version behind obj's back.
	if _, err := st.SetNodeData(testPath, []byte(`{"k":"external"}`), store.VersionAny); err != nil {
		t.Fatalf("external write: %v", err)
	}

	obj.SetField("k", "v2")
	_, err := obj.Publish(false)
	if !cerrors.Is(err, cerrors.KindPublishVersion) {
		t.Fatalf("expected KindPublishVersion, got %v", err)
	}
}

func TestUnconditionalPublishIgnoresVersion(t *testing.T) {
	st := newTestStore(t)
	obj := cache.New(st, testPath)
	if err := obj.LoadFromRepository(false); err != nil {
		t.Fatalf("LoadFromRepository: %v", err)
	}
	if _, err := st.SetNodeData(testPath, []byte(`{"k":"external"}`), store.VersionAny); err != nil {
		t.Fatalf("external write: %v", err)
	}

	obj.SetField("k", "mine")
	if _, err := obj.Publish(true); err != nil {
		t.Fatalf("unconditional Publish should succeed despite stale version: %v", err)
	}
}
