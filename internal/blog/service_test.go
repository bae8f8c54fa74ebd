package blog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blogchain/internal/chain"
	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/schema"
	"github.com/roach88/blogchain/internal/store"
	"github.com/roach88/blogchain/internal/store/memory"
)

func newBackend(t *testing.T) *memory.Store {
	t.Helper()
	b, err := memory.New(store.Options{Agent: "tester"})
	require.NoError(t, err)
	return b
}

func newService(t *testing.T, b store.Backend) *Service {
	t.Helper()
	v, err := schema.New()
	require.NoError(t, err)
	s, err := New(context.Background(), b, v, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s
}

func mustPost(t *testing.T, rec ir.Record) Post {
	t.Helper()
	p, err := DecodePost(rec)
	require.NoError(t, err)
	return p
}

func TestCreateThenGetOriginal(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	payloads := []Post{
		{Title: "A", Body: "B"},
		{Title: "title only"},
		{Title: "unicode é ", Body: strings.Repeat("x", 4096)},
	}
	for _, p := range payloads {
		rec, err := s.CreatePost(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, p, mustPost(t, rec))

		got, err := s.GetOriginalPost(ctx, rec.Address)
		require.NoError(t, err)
		require.NotNil(t, got, "get_original must never miss right after create")
		assert.Equal(t, p, mustPost(t, *got))
	}
}

func TestCreateValidation(t *testing.T) {
	b := newBackend(t)
	s := newService(t, b)
	ctx := context.Background()

	_, err := s.CreatePost(ctx, Post{Body: "no title"})
	assert.ErrorIs(t, err, chain.ErrValidation)

	_, err = s.CreateComment(ctx, Comment{Text: "", Target: "x"})
	assert.ErrorIs(t, err, chain.ErrValidation)

	seq, err := b.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "validation fails before any write")
}

func TestIdenticalPayloadsShareEntryAddress(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	a, err := s.CreatePost(ctx, Post{Title: "same"})
	require.NoError(t, err)
	b, err := s.CreatePost(ctx, Post{Title: "same"})
	require.NoError(t, err)

	assert.Equal(t, a.Action.EntryAddress, b.Action.EntryAddress)
	assert.NotEqual(t, a.Address, b.Address)
}

func TestUpdateShowsOneReferencingUpdate(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	orig, err := s.CreatePost(ctx, Post{Title: "v1"})
	require.NoError(t, err)
	upd, err := s.UpdatePost(ctx, orig.Address, Post{Title: "v2"})
	require.NoError(t, err)
	assert.Equal(t, Post{Title: "v2"}, mustPost(t, upd))
	assert.Equal(t, orig.Address, upd.Action.Predecessor)

	d, err := s.Details(ctx, orig.Address)
	require.NoError(t, err)
	rd := d.(ir.RecordDetails)
	require.Len(t, rd.Updates, 1)
	assert.Equal(t, upd.Address, rd.Updates[0].Address)
	assert.Empty(t, rd.Deletes)
}

func TestUpdateErrors(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	post, err := s.CreatePost(ctx, Post{Title: "p"})
	require.NoError(t, err)
	unknown := ir.Address(strings.Repeat("0", 64))

	_, err = s.UpdatePost(ctx, unknown, Post{Title: "v2"})
	assert.ErrorIs(t, err, chain.ErrNotFound)
	assert.Equal(t, "update_post", err.(*chain.Error).Op)

	_, err = s.UpdatePost(ctx, post.Address, Post{})
	assert.ErrorIs(t, err, chain.ErrValidation)

	c, err := s.CreateComment(ctx, Comment{Text: "hi", Target: post.Address})
	require.NoError(t, err)
	_, err = s.UpdatePost(ctx, c.Address, Post{Title: "kind mismatch"})
	assert.ErrorIs(t, err, chain.ErrValidation)
}

func TestDelete(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	_, err := s.DeletePost(ctx, ir.Address(strings.Repeat("0", 64)))
	assert.ErrorIs(t, err, chain.ErrNotFound)

	orig, err := s.CreatePost(ctx, Post{Title: "doomed"})
	require.NoError(t, err)
	del, err := s.DeletePost(ctx, orig.Address)
	require.NoError(t, err)

	d, err := s.Details(ctx, orig.Address)
	require.NoError(t, err)
	rd := d.(ir.RecordDetails)
	require.Len(t, rd.Deletes, 1)
	assert.Equal(t, del, rd.Deletes[0].Address)

	deletes, err := s.GetPostDeletes(ctx, orig.Address)
	require.NoError(t, err)
	require.Len(t, deletes, 1)
	assert.Equal(t, del, deletes[0].Address)

	// History is kept.
	got, err := s.GetOriginalPost(ctx, orig.Address)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "doomed", mustPost(t, *got).Title)

	latest, err := s.GetLatestPost(ctx, orig.Address)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestGetOriginalUnknown(t *testing.T) {
	s := newService(t, newBackend(t))
	got, err := s.GetOriginalPost(context.Background(), ir.Address(strings.Repeat("0", 64)))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetOriginalEntryAddressIsMalformed(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()
	rec, err := s.CreatePost(ctx, Post{Title: "p"})
	require.NoError(t, err)

	_, err = s.GetOriginalPost(ctx, rec.Action.EntryAddress)
	assert.ErrorIs(t, err, chain.ErrMalformedResponse)
}

func TestComments(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	post, err := s.CreatePost(ctx, Post{Title: "p"})
	require.NoError(t, err)

	c, err := s.CreateComment(ctx, Comment{Text: "first", Target: post.Address})
	require.NoError(t, err)
	decoded, err := DecodeComment(c)
	require.NoError(t, err)
	assert.Equal(t, Comment{Text: "first", Target: post.Address}, decoded)

	c2, err := s.UpdateComment(ctx, c.Address, Comment{Text: "edited", Target: post.Address})
	require.NoError(t, err)
	latest, err := s.GetLatestComment(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, c2.Address, latest.Address)

	_, err = s.DeleteComment(ctx, c2.Address)
	require.NoError(t, err)
	latest, err = s.GetLatestComment(ctx, c.Address)
	require.NoError(t, err)
	assert.Nil(t, latest)

	// Targets must be stored post actions.
	_, err = s.CreateComment(ctx, Comment{Text: "x", Target: ir.Address(strings.Repeat("0", 64))})
	assert.ErrorIs(t, err, chain.ErrNotFound)
	_, err = s.CreateComment(ctx, Comment{Text: "x", Target: c.Address})
	assert.ErrorIs(t, err, chain.ErrValidation)
	_, err = s.CreateComment(ctx, Comment{Text: "x", Target: post.Action.EntryAddress})
	assert.ErrorIs(t, err, chain.ErrNotFound)

	// Kind checks on reads and deletes.
	_, err = s.GetOriginalPost(ctx, c.Address)
	assert.ErrorIs(t, err, chain.ErrValidation)
	_, err = s.GetOriginalComment(ctx, post.Address)
	assert.ErrorIs(t, err, chain.ErrValidation)
	assert.Contains(t, err.Error(), "address holds a post, not a comment")
	_, err = s.DeletePost(ctx, c.Address)
	assert.ErrorIs(t, err, chain.ErrValidation)
	_, err = DecodePost(c)
	assert.ErrorIs(t, err, chain.ErrValidation)
}

// TestLifecycleScenario walks create, update, delete and a fork on top of
// the original address.
func TestLifecycleScenario(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	addr1, err := s.CreatePost(ctx, Post{Title: "A", Body: "B"})
	require.NoError(t, err)
	res, err := s.Resolve(ctx, addr1.Address)
	require.NoError(t, err)
	assert.Equal(t, chain.StateLive, res.State)

	addr2, err := s.UpdatePost(ctx, addr1.Address, Post{Title: "A2"})
	require.NoError(t, err)
	head, err := s.GetLatestPost(ctx, addr1.Address)
	require.NoError(t, err)
	assert.Equal(t, addr2.Address, head.Address)

	addr3, err := s.DeletePost(ctx, addr2.Address)
	require.NoError(t, err)
	res, err = s.Resolve(ctx, addr1.Address)
	require.NoError(t, err)
	assert.Equal(t, chain.StateDeleted, res.State)
	assert.Equal(t, []ir.Address{addr3}, res.DeletedBy)

	fork, err := s.UpdatePost(ctx, addr1.Address, Post{Title: "A3"})
	require.NoError(t, err, "updating a superseded action is allowed")

	step, err := s.Step(ctx, addr1.Address)
	require.NoError(t, err)
	assert.Equal(t, chain.StepForked, step.Kind)
	assert.Equal(t, []ir.Address{addr2.Address, fork.Address}, step.Candidates)

	res, err = s.Resolve(ctx, addr1.Address)
	require.NoError(t, err)
	assert.Equal(t, chain.StateForked, res.State)

	_, err = s.GetLatestPost(ctx, addr1.Address)
	require.ErrorIs(t, err, chain.ErrForked)
	assert.Equal(t, []ir.Address{addr2.Address, fork.Address}, err.(*chain.Error).Candidates)
}

func TestRevisions(t *testing.T) {
	s := newService(t, newBackend(t))
	ctx := context.Background()

	rec, err := s.CreatePost(ctx, Post{Title: "v1"})
	require.NoError(t, err)
	origin := rec.Address
	for _, title := range []string{"v2", "v3"} {
		rec, err = s.UpdatePost(ctx, rec.Address, Post{Title: title})
		require.NoError(t, err)
	}

	revs, err := s.GetPostRevisions(ctx, origin)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	titles := make([]string, len(revs))
	for i, r := range revs {
		titles[i] = mustPost(t, r).Title
	}
	assert.Equal(t, []string{"v1", "v2", "v3"}, titles)

	_, err = s.GetPostRevisions(ctx, ir.Address(strings.Repeat("0", 64)))
	assert.ErrorIs(t, err, chain.ErrNotFound)
}

// entryDetailsStore answers every details request with entry details,
// breaking the single-record contract.
type entryDetailsStore struct {
	*memory.Store
}

func (s entryDetailsStore) GetDetails(ctx context.Context, addr ir.Address) (ir.Details, error) {
	rec, err := s.Store.Get(ctx, addr)
	if err != nil || rec == nil {
		return nil, err
	}
	return ir.EntryDetails{Record: ir.Record{Address: addr, Entry: rec.Entry}}, nil
}

func TestMalformedDetails(t *testing.T) {
	b := newBackend(t)
	s := newService(t, entryDetailsStore{b})
	ctx := context.Background()

	rec, err := s.CreatePost(ctx, Post{Title: "p"})
	require.NoError(t, err)
	_, err = s.GetOriginalPost(ctx, rec.Address)
	assert.ErrorIs(t, err, chain.ErrMalformedResponse)
}

// forgetfulStore accepts writes but never finds the actions of type
// forget afterwards. An empty forget hides every action.
type forgetfulStore struct {
	*memory.Store
	forget ir.ActionType
}

func (s forgetfulStore) Get(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	rec, err := s.Store.Get(ctx, addr)
	if err != nil || rec == nil || !rec.IsAction() {
		return rec, err
	}
	if s.forget == "" || rec.Action.Type == s.forget {
		return nil, nil
	}
	return rec, nil
}

func TestCreateConfirmFailure(t *testing.T) {
	s := newService(t, forgetfulStore{Store: newBackend(t)})
	_, err := s.CreatePost(context.Background(), Post{Title: "lost"})
	require.ErrorIs(t, err, chain.ErrStorageFailure)
	assert.Contains(t, err.Error(), "could not find the newly created post")
}

func TestUpdateConfirmFailure(t *testing.T) {
	s := newService(t, forgetfulStore{Store: newBackend(t), forget: ir.ActionUpdate})
	ctx := context.Background()

	orig, err := s.CreatePost(ctx, Post{Title: "v1"})
	require.NoError(t, err)
	_, err = s.UpdatePost(ctx, orig.Address, Post{Title: "v2"})
	require.ErrorIs(t, err, chain.ErrStorageFailure)
	assert.Contains(t, err.Error(), "could not find the newly updated post")
	assert.NotContains(t, err.Error(), "created")

	c, err := s.CreateComment(ctx, Comment{Text: "c1", Target: orig.Address})
	require.NoError(t, err)
	_, err = s.UpdateComment(ctx, c.Address, Comment{Text: "c2", Target: orig.Address})
	require.ErrorIs(t, err, chain.ErrStorageFailure)
	assert.Contains(t, err.Error(), "could not find the newly updated comment")
}

func TestDecomposedFieldsRejected(t *testing.T) {
	b := newBackend(t)
	s := newService(t, b)
	ctx := context.Background()

	_, err := s.CreatePost(ctx, Post{Title: "Cafe\u0301"})
	require.ErrorIs(t, err, chain.ErrValidation)
	assert.Contains(t, err.Error(), "title")

	seq, err := b.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "nothing is written for a rejected entry")

	rec, err := s.CreatePost(ctx, Post{Title: "Caf\u00e9", Body: "fine"})
	require.NoError(t, err)
	got, err := s.GetOriginalPost(ctx, rec.Address)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Post{Title: "Caf\u00e9", Body: "fine"}, mustPost(t, *got))

	_, err = s.UpdatePost(ctx, rec.Address, Post{Title: "ok", Body: "a\u030a"})
	assert.ErrorIs(t, err, chain.ErrValidation)
	_, err = s.CreateComment(ctx, Comment{Text: "o\u0308", Target: rec.Address})
	assert.ErrorIs(t, err, chain.ErrValidation)
}

// Two services writing to one backend share its agent, so their clocks hand
// out the same seqs. Identical writes must still land as distinct actions.
func TestSharedBackendWriters(t *testing.T) {
	b := newBackend(t)
	s1 := newService(t, b)
	s2 := newService(t, b)
	ctx := context.Background()

	a, err := s1.CreatePost(ctx, Post{Title: "same"})
	require.NoError(t, err)
	c, err := s2.CreatePost(ctx, Post{Title: "same"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, c.Address, "second create collapsed into the first")
	assert.Equal(t, a.Action.EntryAddress, c.Action.EntryAddress)
	assert.Equal(t, a.Action.Author, c.Action.Author)
	assert.NotEqual(t, a.Action.Seq, c.Action.Seq)

	// Both writers revise a at the same point with the same payload.
	u1, err := s1.UpdatePost(ctx, a.Address, Post{Title: "edit"})
	require.NoError(t, err)
	u2, err := s2.UpdatePost(ctx, a.Address, Post{Title: "edit"})
	require.NoError(t, err)
	assert.NotEqual(t, u1.Address, u2.Address)

	step, err := s1.Step(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, chain.StepForked, step.Kind)
	assert.ElementsMatch(t, []ir.Address{u1.Address, u2.Address}, step.Candidates)

	_, err = s2.GetLatestPost(ctx, a.Address)
	assert.ErrorIs(t, err, chain.ErrForked)

	revs, err := s1.GetPostRevisions(ctx, c.Address)
	require.NoError(t, err)
	require.Len(t, revs, 1, "the second create has its own chain")
	assert.Equal(t, c.Address, revs[0].Address)
}
