package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); err != ErrCacheMiss {
		t.Fatalf("Get missing: err=%v, want ErrCacheMiss", err)
	}

	if err := s.SetWithTTL(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get: got %q, %v", got, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != ErrCacheMiss {
		t.Fatalf("Get after delete: err=%v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); err != ErrCacheMiss {
		t.Fatalf("Get after expiry: err=%v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_SetNXExclusive(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	ok, err = s.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should fail: ok=%v err=%v", ok, err)
	}

	// an expired holder no longer blocks
	if err := s.SetWithTTL(ctx, "stale", "a", 10*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if ok, _ := s.SetNX(ctx, "stale", "b", time.Minute); !ok {
		t.Fatal("SetNX over an expired key should succeed")
	}
}

func TestMemoryStore_SetNXConcurrent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if ok, _ := s.SetNX(ctx, "lock", "holder", time.Minute); ok {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("concurrent SetNX winners: got %d, want exactly 1", count)
	}
}

func TestMemoryStore_CompareAndDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.SetWithTTL(ctx, "lock", "token-a", time.Minute)

	// wrong value leaves the key alone
	if err := s.CompareAndDelete(ctx, "lock", "token-b"); err != nil {
		t.Fatalf("CompareAndDelete: %v", err)
	}
	if _, err := s.Get(ctx, "lock"); err != nil {
		t.Fatal("key should survive a mismatched CompareAndDelete")
	}

	if err := s.CompareAndDelete(ctx, "lock", "token-a"); err != nil {
		t.Fatalf("CompareAndDelete: %v", err)
	}
	if _, err := s.Get(ctx, "lock"); err != ErrCacheMiss {
		t.Fatal("key should be gone after a matching CompareAndDelete")
	}
}

func TestGetSetJSON(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	type payload struct {
		Pair  string  `json:"pair"`
		Price float64 `json:"price"`
	}
	in := payload{Pair: "BTC/USDT", Price: 50123.45}
	if err := SetJSON(ctx, s, "p", in, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var out payload
	if err := GetJSON(ctx, s, "p", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: %+v != %+v", out, in)
	}
}
