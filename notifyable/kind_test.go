package notifyable

import "testing"

func TestDirTokenRoundTrip(t *testing.T) {
	kinds := []Kind{
		KindApplication, KindGroup, KindDataDistribution,
		KindNode, KindProcessSlot, KindPropertyList, KindQueue,
	}
	for _, k := range kinds {
		tok := k.DirToken()
		if tok == "" {
			t.Fatalf("%v.DirToken() is empty", k)
		}
		got, ok := KindFromDirToken(tok)
		if !ok || got != k {
			t.Errorf("KindFromDirToken(%q) = %v,%v, want %v,true", tok, got, ok, k)
		}
	}
}

func TestPermitsChild(t *testing.T) {
	if !PermitsChild(KindRoot, KindApplication) {
		t.Errorf("Root should permit Application children")
	}
	if PermitsChild(KindRoot, KindGroup) {
		t.Errorf("Root should not permit Group as a direct child")
	}
	if !PermitsChild(KindGroup, KindGroup) {
		t.Errorf("Group should permit nested Group children")
	}
	if PermitsChild(KindQueue, KindNode) {
		t.Errorf("Queue should not permit Node children")
	}
}
