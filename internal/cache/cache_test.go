package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCacheSetGetAndExpiry(t *testing.T) {
	store := openTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	if err := store.Set("k1", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	entry, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !entry.Hit || entry.Expired {
		t.Fatalf("expected live hit, got %+v", entry)
	}

	now = now.Add(2 * time.Minute)
	entry, err = store.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !entry.Hit || !entry.Expired || entry.Age != 2*time.Minute {
		t.Fatalf("expected expired hit, got %+v", entry)
	}

	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	entry, _ = store.Get("k1")
	if entry.Hit {
		t.Fatal("expected pruned entry to be gone")
	}
}

func TestCacheJSONHelpers(t *testing.T) {
	store := openTestStore(t)
	type feed struct {
		ID string `json:"id"`
	}
	var out feed
	ok, err := store.GetJSON("pyth:btc:usd", &out)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := store.SetJSON("pyth:btc:usd", feed{ID: "e62df6"}, time.Hour); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	ok, err = store.GetJSON("pyth:btc:usd", &out)
	if err != nil || !ok || out.ID != "e62df6" {
		t.Fatalf("unexpected GetJSON result: ok=%v err=%v out=%+v", ok, err, out)
	}

	var nilStore *Store
	if ok, err := nilStore.GetJSON("x", &out); ok || err != nil {
		t.Fatal("expected nil store to behave as a miss")
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 8
	const iterations = 20

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				entry, err := store.Get(key)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !entry.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}
