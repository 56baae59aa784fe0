package id

import (
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestRule_IsMillisecondTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	got := Rule()
	ms, err := strconv.ParseInt(got, 10, 64)
	if err != nil {
		t.Fatalf("Rule() = %q, not an integer: %v", got, err)
	}
	if ms < before {
		t.Errorf("Rule() = %d, want >= %d", ms, before)
	}
}

func TestRule_StrictlyIncreasingWithFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	orig := now
	now = func() time.Time { return frozen }
	defer func() { now = orig }()

	ruleMu.Lock()
	ruleLast = 0
	ruleMu.Unlock()

	var prev int64
	for i := 0; i < 50; i++ {
		ms, _ := strconv.ParseInt(Rule(), 10, 64)
		if ms <= prev {
			t.Fatalf("Rule() = %d, not greater than previous %d", ms, prev)
		}
		prev = ms
	}
	if prev != frozen.UnixMilli()+49 {
		t.Errorf("last id = %d, want %d", prev, frozen.UnixMilli()+49)
	}
}

func TestRule_ConcurrentUnique(t *testing.T) {
	const goroutines = 20
	const perGoroutine = 50

	results := make(chan string, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				results <- Rule()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, goroutines*perGoroutine)
	for id := range results {
		if seen[id] {
			t.Fatalf("Rule() concurrent duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestRecord_Format(t *testing.T) {
	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	for i := 0; i < 100; i++ {
		if id := Record(); !uuidRegex.MatchString(id) {
			t.Errorf("Record() = %q, does not match UUID v4 format", id)
		}
	}
}
