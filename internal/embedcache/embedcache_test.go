package embedcache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestGetPut(t *testing.T) {
	c, err := New(10, 4)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	if err := c.Put("k1", vec(4, 0.5)); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got[0] != 0.5 {
		t.Errorf("got[0] = %v, want 0.5", got[0])
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 || s.Capacity != 10 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(3, 2)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Put(fmt.Sprintf("k%d", i), vec(2, float32(i))); err != nil {
			t.Fatal(err)
		}
	}

	// Touch k0 so k1 becomes the oldest.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("k0 should be present")
	}

	// Capacity+1-th distinct insert evicts exactly one entry: the LRU.
	if err := c.Put("k3", vec(2, 3)); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should have survived eviction", key)
		}
	}
	if s := c.Stats(); s.Size != 3 {
		t.Errorf("size = %d, want 3", s.Size)
	}
}

func TestRejectsWrongDimension(t *testing.T) {
	c, err := New(10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("bad", vec(3, 1)); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("rejected vector must not be stored")
	}
}

func TestCopyOnWrite(t *testing.T) {
	c, err := New(10, 2)
	if err != nil {
		t.Fatal(err)
	}
	in := []float32{1, 2}
	if err := c.Put("k", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 99

	out, _ := c.Get("k")
	if out[0] != 1 {
		t.Error("cache entry aliased caller memory on Put")
	}
	out[1] = 99
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Error("cache entry aliased caller memory on Get")
	}
}

func TestClear(t *testing.T) {
	c, err := New(10, 2)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("k", vec(2, 1))
	c.Get("k")
	c.Clear()

	s := c.Stats()
	if s.Size != 0 || s.Hits != 0 || s.Misses != 0 {
		t.Errorf("stats after clear = %+v", s)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New(64, 2)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*7+i)%100)
				if _, ok := c.Get(key); !ok {
					c.Put(key, vec(2, float32(i)))
				}
			}
		}(g)
	}
	wg.Wait()

	if s := c.Stats(); s.Size > s.Capacity {
		t.Errorf("size %d exceeds capacity %d", s.Size, s.Capacity)
	}
}
