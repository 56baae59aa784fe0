package requestlog

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func rec(i int, mock bool) Record {
	r := Record{
		Method:      "GET",
		URL:         fmt.Sprintf("/api/items/%d", i),
		Status:      200,
		TimestampMs: int64(1_700_000_000_000 + i),
		DurationMs:  int64(i),
		IsMock:      mock,
	}
	if mock {
		r.RuleID = "rule-1"
	}
	return r
}

func TestMemoryStore_AssignsIDAndTimestamp(t *testing.T) {
	s := NewMemoryStore(10)
	s.Add(Record{Method: "GET", URL: "/a", Status: 200})

	recs := s.List(nil)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
	assert.NotZero(t, recs[0].TimestampMs)

	got, ok := s.Get(recs[0].ID)
	require.True(t, ok)
	assert.Equal(t, "/a", got.URL)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStore_RingEviction(t *testing.T) {
	s := NewMemoryStore(3)
	for i := range 5 {
		s.Add(rec(i, true))
	}

	assert.Equal(t, 3, s.Count())
	recs := s.List(nil)
	require.Len(t, recs, 3)
	assert.Equal(t, "/api/items/4", recs[0].URL, "newest first")
	assert.Equal(t, "/api/items/2", recs[2].URL, "oldest two evicted")
}

func TestMemoryStore_Filter(t *testing.T) {
	s := NewMemoryStore(100)
	for i := range 10 {
		s.Add(rec(i, i%2 == 0))
	}
	s.Add(Record{Method: "POST", URL: "/api/orders", Status: 201, IsMock: true, RuleID: "rule-2"})

	tests := []struct {
		name   string
		filter *Filter
		want   int
	}{
		{"nil filter", nil, 11},
		{"mocked only", &Filter{IsMock: boolPtr(true)}, 6},
		{"pass-through only", &Filter{IsMock: boolPtr(false)}, 5},
		{"method case-insensitive", &Filter{Method: "post"}, 1},
		{"url substring", &Filter{URL: "/items/"}, 10},
		{"rule id", &Filter{RuleID: "rule-2"}, 1},
		{"status", &Filter{Status: 201}, 1},
		{"limit", &Filter{Limit: 4}, 4},
		{"offset", &Filter{Offset: 9}, 2},
		{"offset past end", &Filter{Offset: 50}, 0},
		{"combined", &Filter{IsMock: boolPtr(true), Method: "GET", Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, s.List(tt.filter), tt.want)
		})
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore(2)
	s.Add(rec(1, true))
	s.Add(rec(2, true))
	s.Add(rec(3, true))
	s.Clear()
	assert.Zero(t, s.Count())
	assert.Empty(t, s.List(nil))

	s.Add(rec(4, false))
	assert.Equal(t, "/api/items/4", s.List(nil)[0].URL)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	s := NewMemoryStore(10)
	sub, unsubscribe := s.Subscribe(1)

	s.Add(rec(1, true))
	s.Add(rec(2, true)) // dropped for the full subscriber, still stored

	select {
	case got := <-sub:
		assert.Equal(t, "/api/items/1", got.URL)
	case <-time.After(time.Second):
		t.Fatal("no record delivered")
	}
	assert.Equal(t, 2, s.Count())

	unsubscribe()
	unsubscribe()
	_, open := <-sub
	assert.False(t, open, "unsubscribe closes the channel")
	s.Add(rec(3, true))
}

func TestMulti(t *testing.T) {
	a, b := NewMemoryStore(10), NewMemoryStore(10)
	sink := Multi(a, nil, b)
	sink.Add(rec(1, true))
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
}

func TestAsync_DeliversAndDrains(t *testing.T) {
	mem := NewMemoryStore(100)
	a := NewAsync(mem, 100)
	for i := range 50 {
		a.Add(rec(i, true))
	}
	require.NoError(t, a.Close())
	assert.Equal(t, 50, mem.Count())
	assert.Zero(t, a.Dropped())

	a.Add(rec(99, true))
	assert.Equal(t, uint64(1), a.Dropped(), "records after close are dropped")
	require.NoError(t, a.Close())
}

func TestAsync_NeverBlocksOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []Record
	slow := SinkFunc(func(r Record) {
		<-release
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	a := NewAsync(slow, 2)
	start := time.Now()
	for i := range 20 {
		a.Add(rec(i, true))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Positive(t, a.Dropped())

	close(release)
	require.NoError(t, a.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(20), uint64(len(got))+a.Dropped())
}

func TestAsync_SurvivesPanickingSink(t *testing.T) {
	mem := NewMemoryStore(10)
	calls := 0
	a := NewAsync(SinkFunc(func(r Record) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		mem.Add(r)
	}), 10)
	a.Add(rec(1, true))
	a.Add(rec(2, true))
	require.NoError(t, a.Close())
	assert.Equal(t, 1, mem.Count())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "requests.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for i := range 6 {
		s.Add(rec(i, i < 4))
	}
	s.Add(Record{ID: "fixed", Method: "DELETE", URL: "/api/x", Status: 204, IsMock: true, RuleID: "rule-9"})

	assert.Equal(t, 7, s.Count())

	all := s.List(nil)
	require.Len(t, all, 7)
	assert.Equal(t, "fixed", all[0].ID, "newest first")
	assert.NotEmpty(t, all[1].ID)

	got, ok := s.Get("fixed")
	require.True(t, ok)
	assert.Equal(t, Record{ID: "fixed", Method: "DELETE", URL: "/api/x", Status: 204, TimestampMs: got.TimestampMs, IsMock: true, RuleID: "rule-9"}, got)
	assert.NotZero(t, got.TimestampMs)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.Len(t, s.List(&Filter{IsMock: boolPtr(false)}), 2)
	assert.Len(t, s.List(&Filter{Method: "delete"}), 1)
	assert.Len(t, s.List(&Filter{URL: "items/"}), 6)
	assert.Len(t, s.List(&Filter{RuleID: "rule-1"}), 4)
	assert.Len(t, s.List(&Filter{Status: 204}), 1)

	page := s.List(&Filter{Limit: 2, Offset: 1})
	require.Len(t, page, 2)
	assert.Equal(t, "/api/items/5", page[0].URL)

	s.Clear()
	assert.Zero(t, s.Count())
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")
	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	s.Add(rec(1, true))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Count())
}
