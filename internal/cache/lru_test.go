package cache

import "testing"

func TestLRUEvictsOldest(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, _ int) { evicted = append(evicted, k) })

	c.Add("a", 1)
	c.Add("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Add("c", 3)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	if _, ok := c.Peek("b"); ok {
		t.Fatal("b still present")
	}
	if got := c.Keys(); len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Fatalf("Keys = %v", got)
	}
}

func TestLRURemoveSkipsHook(t *testing.T) {
	calls := 0
	c := New[int, string](1, func(int, string) { calls++ })
	c.Add(1, "x")
	if !c.Remove(1) || c.Len() != 0 {
		t.Fatal("Remove failed")
	}
	if calls != 0 {
		t.Fatalf("onEvict called %d times on Remove", calls)
	}
	if c.Remove(1) {
		t.Fatal("second Remove reported true")
	}
}

func TestLRUUpdateKeepsSize(t *testing.T) {
	c := New[string, int](2, nil)
	c.Add("a", 1)
	c.Add("a", 2)
	if v, _ := c.Get("a"); v != 2 || c.Len() != 1 {
		t.Fatalf("update: v=%d len=%d", v, c.Len())
	}
}
