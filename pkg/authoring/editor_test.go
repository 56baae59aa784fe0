package authoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/store/file"
)

type fakePersister struct {
	mu      sync.Mutex
	loaded  []*mock.Rule
	loadErr error
	saveErr error
	saves   [][]*mock.Rule
}

func (p *fakePersister) Load(context.Context) ([]*mock.Rule, error) {
	return mock.CloneAll(p.loaded), p.loadErr
}

func (p *fakePersister) Save(_ context.Context, rules []*mock.Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves = append(p.saves, mock.CloneAll(rules))
	return nil
}

func (p *fakePersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

func (p *fakePersister) lastSave() []*mock.Rule {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return nil
	}
	return p.saves[len(p.saves)-1]
}

func persistedRule(id string) *mock.Rule {
	return &mock.Rule{
		ID:         id,
		URLPattern: "/api/" + id,
		Method:     "GET",
		Response:   map[string]any{"id": id},
		Enabled:    true,
		Status:     200,
		Headers:    map[string]string{},
	}
}

func newEditor(t *testing.T, p store.Persister, opts ...Option) (*Editor, *store.RuleStore, *interceptor.Gate) {
	t.Helper()
	rules := store.NewRuleStore()
	gate := interceptor.NewGate()
	opts = append([]Option{WithSaveDebounce(10 * time.Millisecond)}, opts...)
	e := NewEditor(rules, gate, p, opts...)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, rules, gate
}

func loaded(t *testing.T, p *fakePersister) (*Editor, *store.RuleStore) {
	t.Helper()
	e, rules, _ := newEditor(t, p)
	require.NoError(t, e.Load(context.Background()))
	return e, rules
}

func TestLoad(t *testing.T) {
	t.Run("publishes persisted rules and opens the gate", func(t *testing.T) {
		p := &fakePersister{loaded: []*mock.Rule{persistedRule("a"), persistedRule("b")}}
		e, rules, gate := newEditor(t, p)
		assert.False(t, e.Initialized())

		require.NoError(t, e.Load(context.Background()))

		assert.True(t, gate.Ready())
		assert.True(t, e.Initialized())
		require.Equal(t, 2, rules.Len())
		assert.Equal(t, "a", rules.Snapshot()[0].ID)
		assert.Zero(t, p.saveCount(), "loading does not save")
	})

	t.Run("empty rule set falls back to the demo rule", func(t *testing.T) {
		e, rules, gate := newEditor(t, &fakePersister{loaded: []*mock.Rule{}})
		require.NoError(t, e.Load(context.Background()))

		assert.True(t, gate.Ready())
		require.Equal(t, 1, rules.Len())
		assert.Equal(t, mock.DefaultRule().ID, rules.Snapshot()[0].ID)
	})

	t.Run("load failure falls back to the demo rule", func(t *testing.T) {
		boom := errors.New("connection refused")
		e, rules, gate := newEditor(t, &fakePersister{loadErr: boom})

		err := e.Load(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.True(t, gate.Ready())
		assert.True(t, e.Initialized())
		assert.Equal(t, mock.DefaultRule().ID, rules.Snapshot()[0].ID)
	})

	t.Run("no persister", func(t *testing.T) {
		e, rules, gate := newEditor(t, nil)
		require.NoError(t, e.Load(context.Background()))
		assert.True(t, gate.Ready())
		assert.Equal(t, 1, rules.Len())

		_, err := e.Add("/api/x", "GET")
		require.NoError(t, err)
		assert.NoError(t, e.Close(context.Background()))
	})

	t.Run("custom fallback", func(t *testing.T) {
		e, rules, _ := newEditor(t, &fakePersister{}, WithFallback())
		require.NoError(t, e.Load(context.Background()))
		assert.Zero(t, rules.Len())

		e2, rules2, _ := newEditor(t, &fakePersister{}, WithFallback(persistedRule("seed")))
		require.NoError(t, e2.Load(context.Background()))
		require.Equal(t, 1, rules2.Len())
		assert.Equal(t, "seed", rules2.Snapshot()[0].ID)
	})
}

func TestEditsBeforeLoadAreNotSaved(t *testing.T) {
	p := &fakePersister{}
	e, rules, _ := newEditor(t, p)

	_, err := e.Add("/api/early", "GET")
	require.NoError(t, err)
	assert.Equal(t, 1, rules.Len(), "edit is still published")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, p.saveCount())
	require.NoError(t, e.Close(context.Background()))
	assert.Zero(t, p.saveCount())
}

func TestAdd(t *testing.T) {
	p := &fakePersister{loaded: []*mock.Rule{persistedRule("a")}}
	e, rules := loaded(t, p)

	r, err := e.Add("/api/new", "post")
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "/api/new", r.URLPattern)
	assert.Equal(t, "POST", r.Method)
	assert.Equal(t, map[string]any{"message": "Hello PocketMock"}, r.Response)
	assert.True(t, r.Enabled)
	assert.Equal(t, 0, r.DelayMs)
	assert.Equal(t, 200, r.Status)
	assert.Empty(t, r.Headers)

	snap := rules.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, r.ID, snap[0].ID, "new rules are prepended")
	assert.Equal(t, "a", snap[1].ID)

	_, err = e.Add("", "GET")
	assert.ErrorIs(t, err, mock.ErrInvalidRule)
	assert.Len(t, rules.Snapshot(), 2)
}

func TestSavesAreDebounced(t *testing.T) {
	p := &fakePersister{loaded: []*mock.Rule{persistedRule("a")}}
	e, _ := loaded(t, p)

	require.NoError(t, e.Toggle("a"))
	require.NoError(t, e.UpdateStatus("a", 404))
	require.NoError(t, e.UpdateDelay("a", 250))

	require.Eventually(t, func() bool { return p.saveCount() > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, p.saveCount(), "burst of edits is saved once")

	saved := p.lastSave()
	require.Len(t, saved, 1)
	assert.False(t, saved[0].Enabled)
	assert.Equal(t, 404, saved[0].Status)
	assert.Equal(t, 250, saved[0].DelayMs)
}

func TestCloseFlushesPendingSave(t *testing.T) {
	p := &fakePersister{loaded: []*mock.Rule{persistedRule("a")}}
	e, _, _ := newEditor(t, p, WithSaveDebounce(time.Hour))
	require.NoError(t, e.Load(context.Background()))

	require.NoError(t, e.Delete("a"))
	assert.Zero(t, p.saveCount())

	require.NoError(t, e.Close(context.Background()))
	require.Equal(t, 1, p.saveCount())
	assert.Empty(t, p.lastSave())

	require.NoError(t, e.Close(context.Background()), "second close is a no-op")
	assert.Equal(t, 1, p.saveCount())
}

func TestFlushKeepsEditPendingOnFailure(t *testing.T) {
	p := &fakePersister{loaded: []*mock.Rule{persistedRule("a")}, saveErr: errors.New("disk full")}
	e, _, _ := newEditor(t, p, WithSaveDebounce(time.Hour))
	require.NoError(t, e.Load(context.Background()))
	require.NoError(t, e.Toggle("a"))

	assert.Error(t, e.Flush(context.Background()))

	p.mu.Lock()
	p.saveErr = nil
	p.mu.Unlock()
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 1, p.saveCount())
}

func TestToggleAndDelete(t *testing.T) {
	e, rules := loaded(t, &fakePersister{loaded: []*mock.Rule{persistedRule("a"), persistedRule("b")}})

	require.NoError(t, e.Toggle("b"))
	r, err := rules.Get("b")
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	require.NoError(t, e.Toggle("b"))
	r, _ = rules.Get("b")
	assert.True(t, r.Enabled)

	require.NoError(t, e.Delete("a"))
	assert.Equal(t, 1, rules.Len())

	assert.ErrorIs(t, e.Toggle("missing"), store.ErrNotFound)
	assert.ErrorIs(t, e.Delete("missing"), store.ErrNotFound)
}

func TestSetEnabledAndDynamic(t *testing.T) {
	e, rules := loaded(t, &fakePersister{loaded: []*mock.Rule{persistedRule("a")}})

	require.NoError(t, e.SetEnabled("a", false))
	require.NoError(t, e.SetEnabled("a", false))
	require.NoError(t, e.SetDynamic("a", true))

	r, err := rules.Get("a")
	require.NoError(t, err)
	assert.False(t, r.Enabled)
	assert.True(t, r.Dynamic)

	assert.ErrorIs(t, e.SetEnabled("missing", true), store.ErrNotFound)
}

func TestEditsDoNotMutatePublishedSnapshots(t *testing.T) {
	e, rules := loaded(t, &fakePersister{loaded: []*mock.Rule{persistedRule("a")}})
	before := rules.Snapshot()

	require.NoError(t, e.UpdateStatus("a", 500))

	assert.Equal(t, 200, before[0].Status, "readers holding the old generation see no change")
	assert.Equal(t, 500, rules.Snapshot()[0].Status)
}

func TestUpdateResponse(t *testing.T) {
	e, rules := loaded(t, &fakePersister{loaded: []*mock.Rule{persistedRule("a")}})

	assert.True(t, e.UpdateResponse("a", `{"users": [{"id": "@guid"}]}`))
	r, _ := rules.Get("a")
	assert.Equal(t, map[string]any{"users": []any{map[string]any{"id": "@guid"}}}, r.Response)

	assert.False(t, e.UpdateResponse("a", `{"users": [`))
	r, _ = rules.Get("a")
	assert.Equal(t, map[string]any{"users": []any{map[string]any{"id": "@guid"}}}, r.Response, "unchanged")

	assert.False(t, e.UpdateResponse("missing", `{}`))
}

func TestUpdateHeaders(t *testing.T) {
	e, rules := loaded(t, &fakePersister{loaded: []*mock.Rule{persistedRule("a")}})

	assert.True(t, e.UpdateHeaders("a", `{"X-Mock": "1", "content-type": "text/plain"}`))
	r, _ := rules.Get("a")
	assert.Equal(t, map[string]string{"X-Mock": "1", "content-type": "text/plain"}, r.Headers)

	for _, bad := range []string{`not json`, `["X-Mock"]`, `{"X-Count": 1}`, `{"bad header": "x"}`} {
		assert.False(t, e.UpdateHeaders("a", bad), bad)
	}
	r, _ = rules.Get("a")
	assert.Equal(t, "1", r.Headers["X-Mock"], "unchanged")

	assert.True(t, e.UpdateHeaders("a", `null`))
	r, _ = rules.Get("a")
	assert.Empty(t, r.Headers)
}

func TestUpdateValidation(t *testing.T) {
	e, rules := loaded(t, &fakePersister{loaded: []*mock.Rule{persistedRule("a")}})

	assert.ErrorIs(t, e.UpdateStatus("a", 700), mock.ErrInvalidRule)
	assert.ErrorIs(t, e.UpdateDelay("a", -1), mock.ErrInvalidRule)
	assert.ErrorIs(t, e.UpdateURL("a", ""), mock.ErrInvalidRule)
	assert.ErrorIs(t, e.UpdateDelay("missing", 10), store.ErrNotFound)

	r, _ := rules.Get("a")
	assert.Equal(t, 200, r.Status)
	assert.Equal(t, 0, r.DelayMs)

	require.NoError(t, e.UpdateURL("a", "/api/v2/a"))
	require.NoError(t, e.UpdateMethod("a", "delete"))
	r, _ = rules.Get("a")
	assert.Equal(t, "/api/v2/a", r.URLPattern)
	assert.Equal(t, "DELETE", r.Method)
}

func TestEditorDrivesInterceptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pocket-mock.json")
	fs := file.New(path)
	t.Cleanup(func() { _ = fs.Close() })

	rules := store.NewRuleStore()
	gate := interceptor.NewGate()
	engine := interceptor.New(rules, gate)
	client := &http.Client{Transport: engine.Transport()}

	e := NewEditor(rules, gate, fs, WithSaveDebounce(5*time.Millisecond))
	require.NoError(t, e.Load(context.Background()))

	r, err := e.Add("/api/hello", "GET")
	require.NoError(t, err)
	require.NoError(t, e.UpdateStatus(r.ID, 201))

	resp, err := client.Get("http://app.test/api/hello")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, 201, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Hello PocketMock"}`, string(body))

	require.NoError(t, e.Close(context.Background()))
	saved, err := fs.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 2, "new rule plus the demo rule")
	assert.Equal(t, r.ID, saved[0].ID)
	assert.Equal(t, 201, saved[0].Status)
}
