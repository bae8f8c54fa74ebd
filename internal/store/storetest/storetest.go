// Package storetest is a conformance suite every store.Backend must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// Opener returns a fresh, empty backend. The suite closes nothing; the
// opener registers its own cleanup.
type Opener func(t *testing.T, opts store.Options) store.Backend

// Post returns a post entry with the given title.
func Post(title string) ir.Entry {
	return ir.Entry{Kind: ir.KindPost, Fields: ir.Object{"title": ir.String(title)}}
}

// Run executes the suite against backends produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("PutEntryIdempotent", func(t *testing.T) { testPutEntryIdempotent(t, open) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, open) })
	t.Run("GetAction", func(t *testing.T) { testGetAction(t, open) })
	t.Run("PutActionIdempotent", func(t *testing.T) { testPutActionIdempotent(t, open) })
	t.Run("InsertActionReportsNew", func(t *testing.T) { testInsertActionReportsNew(t, open) })
	t.Run("MissingReferences", func(t *testing.T) { testMissingReferences(t, open) })
	t.Run("RecordDetailsOrder", func(t *testing.T) { testRecordDetailsOrder(t, open) })
	t.Run("EntryDetails", func(t *testing.T) { testEntryDetails(t, open) })
	t.Run("MaxSeqAndScan", func(t *testing.T) { testMaxSeqAndScan(t, open) })
	t.Run("Identity", func(t *testing.T) { testIdentity(t, open) })
	t.Run("Verify", func(t *testing.T) { testVerify(t, open) })
}

func create(t *testing.T, s store.Backend, e ir.Entry, seq int64) ir.Address {
	t.Helper()
	ctx := context.Background()
	entryAddr, err := s.PutEntry(ctx, e)
	require.NoError(t, err)
	addr, err := s.PutAction(ctx, ir.Action{
		Type: ir.ActionCreate, Author: s.Agent(), Seq: seq,
		EntryKind: e.Kind, EntryAddress: entryAddr,
	})
	require.NoError(t, err)
	return addr
}

func update(t *testing.T, s store.Backend, prev ir.Address, e ir.Entry, seq int64) ir.Address {
	t.Helper()
	ctx := context.Background()
	entryAddr, err := s.PutEntry(ctx, e)
	require.NoError(t, err)
	addr, err := s.PutAction(ctx, ir.Action{
		Type: ir.ActionUpdate, Author: s.Agent(), Seq: seq,
		EntryKind: e.Kind, EntryAddress: entryAddr, Predecessor: prev,
	})
	require.NoError(t, err)
	return addr
}

func remove(t *testing.T, s store.Backend, target ir.Address, seq int64) ir.Address {
	t.Helper()
	addr, err := s.PutAction(context.Background(), ir.Action{
		Type: ir.ActionDelete, Author: s.Agent(), Seq: seq,
		EntryKind: ir.KindPost, Predecessor: target,
	})
	require.NoError(t, err)
	return addr
}

func addresses(recs []ir.Record) []ir.Address {
	out := make([]ir.Address, len(recs))
	for i, r := range recs {
		out[i] = r.Address
	}
	return out
}

func testPutEntryIdempotent(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()

	a, err := s.PutEntry(ctx, Post("hello"))
	require.NoError(t, err)
	b, err := s.PutEntry(ctx, Post("hello"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	want, err := s.Hasher().EntryAddress(Post("hello"))
	require.NoError(t, err)
	assert.Equal(t, want, a)

	rec, err := s.Get(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.IsAction())
	assert.Equal(t, Post("hello"), *rec.Entry)

	_, err = s.PutEntry(ctx, ir.Entry{Kind: "note"})
	assert.Error(t, err)
}

func testGetUnknown(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()
	addr, err := s.Hasher().EntryAddress(Post("never stored"))
	require.NoError(t, err)

	rec, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, rec)

	d, err := s.GetDetails(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func testGetAction(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()

	orig := create(t, s, Post("v1"), 1)
	del := remove(t, s, orig, 2)

	rec, err := s.Get(ctx, orig)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, rec.IsAction())
	assert.Equal(t, ir.ActionCreate, rec.Action.Type)
	assert.Equal(t, int64(1), rec.Action.Seq)
	require.NotNil(t, rec.Entry)
	assert.Equal(t, "v1", rec.Entry.Fields.Str("title"))

	rec, err = s.Get(ctx, del)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ir.ActionDelete, rec.Action.Type)
	assert.Equal(t, orig, rec.Action.Predecessor)
	assert.Nil(t, rec.Entry)
}

func testPutActionIdempotent(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	a := create(t, s, Post("x"), 1)
	b := create(t, s, Post("x"), 1)
	c := create(t, s, Post("x"), 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "distinct seq must give distinct actions over the same entry")
}

func testInsertActionReportsNew(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()
	entry, err := s.PutEntry(ctx, Post("x"))
	require.NoError(t, err)

	a := ir.Action{Type: ir.ActionCreate, Author: s.Agent(), Seq: 7, EntryKind: ir.KindPost, EntryAddress: entry}
	first, inserted, err := s.InsertAction(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)

	again, inserted, err := s.InsertAction(ctx, a)
	require.NoError(t, err)
	assert.False(t, inserted, "an identical action is already stored")
	assert.Equal(t, first, again)

	a.Seq = 8
	other, inserted, err := s.InsertAction(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, first, other)

	_, inserted, err = s.InsertAction(ctx, ir.Action{
		Type: ir.ActionDelete, Author: s.Agent(), Seq: 9,
		EntryKind: ir.KindPost, Predecessor: entry,
	})
	assert.ErrorIs(t, err, store.ErrMissingReference)
	assert.False(t, inserted)
}

func testMissingReferences(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()
	ghost, err := s.Hasher().EntryAddress(Post("ghost"))
	require.NoError(t, err)

	_, err = s.PutAction(ctx, ir.Action{
		Type: ir.ActionCreate, Author: s.Agent(), Seq: 1,
		EntryKind: ir.KindPost, EntryAddress: ghost,
	})
	assert.ErrorIs(t, err, store.ErrMissingReference)

	_, err = s.PutAction(ctx, ir.Action{
		Type: ir.ActionDelete, Author: s.Agent(), Seq: 1,
		EntryKind: ir.KindPost, Predecessor: ghost,
	})
	assert.ErrorIs(t, err, store.ErrMissingReference)

	_, err = s.PutAction(ctx, ir.Action{Type: ir.ActionDelete, Author: s.Agent(), Seq: 1, EntryKind: ir.KindPost})
	assert.Error(t, err)
}

func testRecordDetailsOrder(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()

	orig := create(t, s, Post("v1"), 1)
	u3 := update(t, s, orig, Post("v3"), 3)
	u2 := update(t, s, orig, Post("v2"), 2)
	d4 := remove(t, s, orig, 4)
	update(t, s, u2, Post("v2.1"), 5)

	d, err := s.GetDetails(ctx, orig)
	require.NoError(t, err)
	rd, ok := d.(ir.RecordDetails)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, orig, rd.Record.Address)
	assert.Equal(t, []ir.Address{u2, u3}, addresses(rd.Updates))
	assert.Equal(t, []ir.Address{d4}, addresses(rd.Deletes))
	assert.Equal(t, "v2", rd.Updates[0].Entry.Fields.Str("title"))

	d, err = s.GetDetails(ctx, u3)
	require.NoError(t, err)
	rd = d.(ir.RecordDetails)
	assert.Empty(t, rd.Updates)
	assert.Empty(t, rd.Deletes)
	assert.NotNil(t, rd.Updates)
}

func testEntryDetails(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()

	a := create(t, s, Post("same"), 1)
	b := create(t, s, Post("same"), 2)
	entryAddr, err := s.Hasher().EntryAddress(Post("same"))
	require.NoError(t, err)

	d, err := s.GetDetails(ctx, entryAddr)
	require.NoError(t, err)
	ed, ok := d.(ir.EntryDetails)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, []ir.Address{a, b}, addresses(ed.Actions))
	assert.Nil(t, ed.Record.Action)
}

func testMaxSeqAndScan(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	ctx := context.Background()

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	orig := create(t, s, Post("a"), 7)
	upd := update(t, s, orig, Post("b"), 9)

	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), seq)

	var actions []ir.Address
	require.NoError(t, s.ScanActions(ctx, func(addr ir.Address, _ ir.Action) error {
		actions = append(actions, addr)
		return nil
	}))
	assert.Equal(t, []ir.Address{orig, upd}, actions)

	var entries []ir.Address
	require.NoError(t, s.ScanEntries(ctx, func(addr ir.Address, _ ir.Entry) error {
		entries = append(entries, addr)
		return nil
	}))
	require.Len(t, entries, 2)
	assert.Less(t, string(entries[0]), string(entries[1]))
}

func testIdentity(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	assert.NotEmpty(t, s.Agent())
	assert.Equal(t, ir.SHA256, s.Hasher().Algorithm())

	s = open(t, store.Options{Agent: "alice", HashAlgorithm: ir.BLAKE3})
	assert.Equal(t, "alice", s.Agent())
	assert.Equal(t, ir.BLAKE3, s.Hasher().Algorithm())
}

func testVerify(t *testing.T, open Opener) {
	s := open(t, store.Options{})
	orig := create(t, s, Post("a"), 1)
	upd := update(t, s, orig, Post("b"), 2)
	remove(t, s, upd, 3)

	report, err := store.Verify(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
	assert.Equal(t, 2, report.Entries)
	assert.Equal(t, 3, report.Actions)
}
