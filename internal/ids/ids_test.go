package ids

import (
	"sort"
	"sync"
	"testing"
)

func TestNewUniqueAndSortable(t *testing.T) {
	const n = 1000
	got := make([]string, n)
	for i := range got {
		got[i] = New()
	}

	seen := make(map[string]struct{}, n)
	for _, id := range got {
		if len(id) != 26 {
			t.Fatalf("id %q has length %d, want 26", id, len(id))
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}

	// Monotonic entropy keeps same-millisecond ids ordered.
	if !sort.StringsAreSorted(got) {
		t.Fatal("ids are not lexicographically ordered")
	}
}

func TestNewConcurrent(t *testing.T) {
	const workers, per = 8, 200
	var (
		mu  sync.Mutex
		all = make(map[string]struct{}, workers*per)
		wg  sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, per)
			for j := range local {
				local[j] = New()
			}
			mu.Lock()
			for _, id := range local {
				all[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(all) != workers*per {
		t.Fatalf("got %d unique ids, want %d", len(all), workers*per)
	}
}
