package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blogchain/internal/blog"
	"github.com/roach88/blogchain/internal/testutil"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Index: 1, Op: OpCreatePost, As: "p1", Outcome: OutcomeOK},
		{Index: 2, Op: OpUpdatePost, Ref: "p1", As: "p2", Outcome: OutcomeOK},
		{Index: 3, Op: OpDeletePost, Ref: "zz", Outcome: "NOT_FOUND"},
		{Index: 4, Op: OpCreatePost, As: "p3", Outcome: OutcomeOK},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpUpdatePost}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpUpdatePost, Ref: "p2"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpDeletePost, Outcome: "NOT_FOUND"}))

	err := assertTraceContains(trace, Assertion{Op: OpDeletePost, Outcome: OutcomeOK})
	require.Error(t, err)
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, AssertTraceContains, assertErr.Type)
	assert.Equal(t, "delete_post with outcome ok", assertErr.Expected)
	assert.Equal(t, "not found in trace", assertErr.Actual)
	assert.Contains(t, err.Error(), "[3] delete_post zz -> NOT_FOUND")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Aliases: []string{"p1", "p2", "p3"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Aliases: []string{"p1", "p3"}}))

	err := assertTraceOrder(trace, Assertion{Aliases: []string{"p3", "p1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p3 (step 4) should be before p1 (step 1)")

	err = assertTraceOrder(trace, Assertion{Aliases: []string{"p1", "missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alias missing never bound")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpCreatePost, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpResolve, Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: OpCreatePost, Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 occurrences of create_post")
}

func TestAssertStoreCount(t *testing.T) {
	ctx := context.Background()
	env, err := testutil.NewEnv(ctx, "", "")
	require.NoError(t, err)

	first, err := env.Service.CreatePost(ctx, blog.Post{Title: "same"})
	require.NoError(t, err)
	_, err = env.Service.CreatePost(ctx, blog.Post{Title: "same"})
	require.NoError(t, err)
	_, err = env.Service.DeletePost(ctx, first.Address)
	require.NoError(t, err)

	one, three := 1, 3
	assert.NoError(t, assertStoreCount(ctx, env.Store, Assertion{Entries: &one, Actions: &three}))

	err = assertStoreCount(ctx, env.Store, Assertion{Entries: &three})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 3 entries")
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	result := NewResult()
	for _, ev := range sampleTrace() {
		result.AddEvent(ev)
	}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Op: OpCreatePost, Count: 2},
		{Type: AssertTraceCount, Op: OpCreatePost, Count: 5},
		{Type: AssertStoreCount, Entries: new(int)},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "5 occurrences of create_post")
	assert.Contains(t, errs[1], "store_count requires a store")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestCheckExpect(t *testing.T) {
	found := true
	hops := 1
	ev := TraceEvent{
		Op:      OpResolve,
		Outcome: OutcomeOK,
		Result: map[string]any{
			"state":  "live",
			"head":   "p2",
			"hops":   1,
			"path":   []any{"p1", "p2"},
			"found":  true,
			"fields": map[string]any{"title": "A", "count": int64(3)},
		},
	}

	assert.Empty(t, checkExpect(ev, nil))
	assert.Empty(t, checkExpect(ev, &Expect{
		State:  "live",
		Head:   "p2",
		Hops:   &hops,
		Path:   []string{"p1", "p2"},
		Found:  &found,
		Fields: map[string]any{"count": 3},
	}))

	errs := checkExpect(ev, &Expect{State: "deleted", Next: "p3", Path: []string{"p1"}})
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "state = live, want deleted")
	assert.Contains(t, errs[1], "next missing from result")
	assert.Contains(t, errs[2], "path = ")

	errs = checkExpect(ev, &Expect{Error: "NOT_FOUND"})
	assert.Equal(t, []string{"outcome ok, want NOT_FOUND"}, errs)

	failed := TraceEvent{Op: OpDeletePost, Outcome: "NOT_FOUND"}
	assert.Equal(t, []string{"outcome NOT_FOUND, want ok"}, checkExpect(failed, nil))
	assert.Empty(t, checkExpect(failed, &Expect{Error: "NOT_FOUND"}))
}
