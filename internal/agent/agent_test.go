package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/query"
)

// recordingAgent supports a fixed set of entity types and records calls.
type recordingAgent struct {
	types []string
	calls []string
	fail  error
}

func (r *recordingAgent) record(call string) error {
	r.calls = append(r.calls, call)
	return r.fail
}

func (r *recordingAgent) Supports(entityType string) bool {
	for _, t := range r.types {
		if t == entityType {
			return true
		}
	}
	return false
}

func (r *recordingAgent) Capabilities() capability.Capabilities {
	return capability.New(capability.Config{CanQueryCount: true})
}

func (r *recordingAgent) Find(identifier any, entityType string) (any, error) {
	return map[string]any{"id": identifier, "type": entityType}, r.record("find")
}

func (r *recordingAgent) FindMany(identifiers []any, entityType string) ([]any, error) {
	return identifiers, r.record("findMany")
}

func (r *recordingAgent) Persist(object any) error { return r.record("persist") }
func (r *recordingAgent) Remove(object any) error  { return r.record("remove") }
func (r *recordingAgent) Flush() error             { return r.record("flush") }

func (r *recordingAgent) Query(q *query.Query) (*Cursor, error) {
	return SliceCursor([]any{q.EntityType()}), r.record("query")
}

func (r *recordingAgent) QueryCount(q *query.Query) (int, error) {
	return 7, r.record("queryCount")
}

func (r *recordingAgent) Identifier(object any) (any, error) {
	return "123", r.record("identifier")
}

func (r *recordingAgent) CanonicalType(entityType string) string {
	r.calls = append(r.calls, "canonical")
	return "real_" + entityType
}

func (r *recordingAgent) SetParent(object, parent any) error { return r.record("setParent") }

func TestRegistry_FindForRegistrationOrder(t *testing.T) {
	first := &recordingAgent{types: []string{"page"}}
	second := &recordingAgent{types: []string{"page", "user"}}

	reg, err := NewRegistry(Entry{"first", first}, Entry{"second", second})
	require.NoError(t, err)

	got, err := reg.FindFor("page")
	require.NoError(t, err)
	assert.Same(t, first, got)

	got, err = reg.FindFor("user")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRegistry_FindForNotFoundListsCandidates(t *testing.T) {
	reg, err := NewRegistry(
		Entry{"memory", &recordingAgent{types: []string{"page"}}},
		Entry{"sql", &recordingAgent{types: []string{"user"}}},
	)
	require.NoError(t, err)

	_, err = reg.FindFor("comment")
	require.Error(t, err)
	assert.True(t, agenterr.IsAgentNotFound(err))
	assert.Contains(t, err.Error(), "comment")
	assert.Contains(t, err.Error(), "memory (*agent.recordingAgent)")
	assert.Contains(t, err.Error(), "sql (*agent.recordingAgent)")
}

func TestRegistry_GetAndName(t *testing.T) {
	a := &recordingAgent{}
	b := &recordingAgent{}
	reg, err := NewRegistry(Entry{"a", a}, Entry{"b", b})
	require.NoError(t, err)

	got, err := reg.Get("b")
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, "a", reg.Name(a))
	assert.Equal(t, "b", reg.Name(b))

	_, err = reg.Get("missing")
	assert.True(t, agenterr.IsAgentNotFound(err))

	assert.Panics(t, func() { reg.Name(&recordingAgent{}) })
}

func TestRegistry_RejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"duplicate name", []Entry{{"x", &recordingAgent{}}, {"x", &recordingAgent{}}}},
		{"nil agent", []Entry{{"x", nil}}},
		{"empty name", []Entry{{"", &recordingAgent{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entries...)
			require.Error(t, err)
			assert.True(t, agenterr.IsInvalidArgument(err))
		})
	}
}

func TestRegistry_EntriesIsCopy(t *testing.T) {
	reg, err := NewRegistry(Entry{"a", &recordingAgent{}})
	require.NoError(t, err)

	entries := reg.Entries()
	entries[0].Name = "changed"
	assert.Equal(t, "a", reg.Entries()[0].Name)
}

func TestEventDispatchingAgent_PersistOrder(t *testing.T) {
	inner := &recordingAgent{}
	bus := NewEventBus()
	var seen []string
	for _, name := range []string{PrePersist, PostPersist} {
		bus.Subscribe(name, func(e Event) error {
			assert.Same(t, inner, e.Agent)
			seen = append(seen, e.Name+":"+e.Object.(string)+":"+lastCall(inner))
			return nil
		})
	}

	a := NewEventDispatchingAgent(inner, bus)
	require.NoError(t, a.Persist("obj"))

	assert.Equal(t, []string{
		PrePersist + ":obj:",
		PostPersist + ":obj:persist",
	}, seen)
}

func TestEventDispatchingAgent_RemoveOrder(t *testing.T) {
	inner := &recordingAgent{}
	bus := NewEventBus()
	var seen []string
	bus.Subscribe(PreRemove, func(e Event) error {
		seen = append(seen, "pre:"+lastCall(inner))
		return nil
	})
	bus.Subscribe(PostRemove, func(e Event) error {
		seen = append(seen, "post:"+lastCall(inner))
		return nil
	})

	a := NewEventDispatchingAgent(inner, bus)
	require.NoError(t, a.Remove("obj"))
	assert.Equal(t, []string{"pre:", "post:remove"}, seen)
}

func TestEventDispatchingAgent_ListenerErrorAborts(t *testing.T) {
	inner := &recordingAgent{}
	bus := NewEventBus()
	boom := errors.New("boom")
	bus.Subscribe(PrePersist, func(Event) error { return boom })
	second := false
	bus.Subscribe(PrePersist, func(Event) error {
		second = true
		return nil
	})

	a := NewEventDispatchingAgent(inner, bus)
	err := a.Persist("obj")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, inner.calls, "wrapped persist must not run")
	assert.False(t, second, "delivery stops at the first error")
}

func TestEventDispatchingAgent_DelegateErrorSkipsPost(t *testing.T) {
	boom := errors.New("staging failed")
	inner := &recordingAgent{fail: boom}
	bus := NewEventBus()
	post := false
	bus.Subscribe(PostRemove, func(Event) error {
		post = true
		return nil
	})

	err := NewEventDispatchingAgent(inner, bus).Remove("obj")
	require.ErrorIs(t, err, boom)
	assert.False(t, post)
}

func TestEventDispatchingAgent_Delegates(t *testing.T) {
	inner := &recordingAgent{types: []string{"page"}}
	a := NewEventDispatchingAgent(inner, NewEventBus())

	assert.True(t, a.Supports("page"))
	assert.True(t, a.Capabilities().CanQueryCount())

	obj, err := a.Find("abc", "page")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc", "type": "page"}, obj)

	many, err := a.FindMany([]any{"abc", "bcd"}, "page")
	require.NoError(t, err)
	assert.Equal(t, []any{"abc", "bcd"}, many)

	q := query.MustNew("page")
	cur, err := a.Query(q)
	require.NoError(t, err)
	all, err := cur.All()
	require.NoError(t, err)
	assert.Equal(t, []any{"page"}, all)

	n, err := a.QueryCount(q)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	id, err := a.Identifier("obj")
	require.NoError(t, err)
	assert.Equal(t, "123", id)

	assert.Equal(t, "real_proxy", a.CanonicalType("proxy"))
	require.NoError(t, a.SetParent("child", "parent"))
	require.NoError(t, a.Flush())
	assert.Same(t, inner, a.Unwrap())

	assert.Equal(t, []string{
		"find", "findMany", "query", "queryCount", "identifier", "canonical", "setParent", "flush",
	}, inner.calls)
}

func TestCursor_SinglePass(t *testing.T) {
	cur := SliceCursor([]any{1, 2, 3})

	var got []any
	for v := range cur.Seq() {
		got = append(got, v)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []any{1, 2, 3}, got)

	assert.False(t, cur.Next(), "cursor is not rewindable")
}

func TestCursor_EarlyBreakCloses(t *testing.T) {
	closed := 0
	i := 0
	cur := NewCursor(func() (any, bool, error) {
		i++
		return i, true, nil
	}, func() error {
		closed++
		return nil
	})

	for v := range cur.Seq() {
		if v.(int) == 2 {
			break
		}
	}
	assert.Equal(t, 1, closed)
	require.NoError(t, cur.Close())
	assert.Equal(t, 1, closed, "close is idempotent")
}

func TestCursor_ErrorStopsIteration(t *testing.T) {
	boom := errors.New("scan failed")
	calls := 0
	cur := NewCursor(func() (any, bool, error) {
		calls++
		if calls == 2 {
			return nil, false, boom
		}
		return calls, true, nil
	}, nil)

	all, err := cur.All()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []any{1}, all)
}

func lastCall(r *recordingAgent) string {
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}
