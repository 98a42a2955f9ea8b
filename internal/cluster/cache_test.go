package cluster

import (
	"testing"

	"github.com/hurttlocker/recall/internal/record"
)

func TestCacheRoundTrip(t *testing.T) {
	cache, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	records := []record.Record{{ID: "a"}, {ID: "b"}}
	fp := Fingerprint(records)
	result := &Result{
		Clusters:       []Cluster{{ID: 0, MemberIDs: []string{"a", "b"}, DominantEmotion: "joy"}},
		NodeClusterMap: map[string]int{"a": 0, "b": 0},
	}

	cache.Set(fp, result)

	got, ok := cache.Get(fp)
	if !ok {
		t.Fatal("expected cache hit for stored fingerprint")
	}
	if got != result {
		t.Error("cache should return the stored result pointer")
	}
}

func TestCacheMissOnDifferentFingerprint(t *testing.T) {
	cache, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	cache.Set("v1:2:a:b", &Result{NodeClusterMap: map[string]int{}})

	if _, ok := cache.Get("v1:3:a:c"); ok {
		t.Error("expected miss for a fingerprint that was never stored")
	}
}
