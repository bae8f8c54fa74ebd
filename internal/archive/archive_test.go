package archive

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
	"github.com/roach88/blogchain/internal/store/memory"
	"github.com/roach88/blogchain/internal/store/sqlite"
	"github.com/roach88/blogchain/internal/store/storetest"
)

func newMemory(t *testing.T) *memory.Store {
	t.Helper()
	m, err := memory.New(store.Options{Agent: "exporter"})
	require.NoError(t, err)
	return m
}

// populate writes a create, an update and a delete, and returns the
// action addresses in order.
func populate(t *testing.T, b store.Backend) []ir.Address {
	t.Helper()
	ctx := context.Background()

	e1, err := b.PutEntry(ctx, storetest.Post("v1"))
	require.NoError(t, err)
	a1, err := b.PutAction(ctx, ir.Action{Type: ir.ActionCreate, Author: b.Agent(), Seq: 1, EntryKind: ir.KindPost, EntryAddress: e1})
	require.NoError(t, err)
	e2, err := b.PutEntry(ctx, storetest.Post("v2"))
	require.NoError(t, err)
	a2, err := b.PutAction(ctx, ir.Action{Type: ir.ActionUpdate, Author: b.Agent(), Seq: 2, EntryKind: ir.KindPost, EntryAddress: e2, Predecessor: a1})
	require.NoError(t, err)
	a3, err := b.PutAction(ctx, ir.Action{Type: ir.ActionDelete, Author: b.Agent(), Seq: 3, EntryKind: ir.KindPost, Predecessor: a2})
	require.NoError(t, err)
	return []ir.Address{a1, a2, a3}
}

func TestRoundTripIntoSQLite(t *testing.T) {
	ctx := context.Background()
	src := newMemory(t)
	actions := populate(t, src)

	var buf bytes.Buffer
	stats, err := Export(ctx, src, &buf)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Actions: 3}, stats)

	header, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "exporter", header.Agent)
	assert.Equal(t, ir.SHA256, header.HashAlgorithm)

	dst, err := sqlite.Open(filepath.Join(t.TempDir(), "dst.db"), store.Options{})
	require.NoError(t, err)
	defer dst.Close()

	stats, err = Import(ctx, dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Actions: 3}, stats)

	for _, addr := range actions {
		want, err := src.Get(ctx, addr)
		require.NoError(t, err)
		got, err := dst.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	report, err := store.Verify(ctx, dst)
	require.NoError(t, err)
	assert.True(t, report.OK())

	// A second import finds everything in place.
	stats, err = Import(ctx, dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Skipped)
}

func TestImportAlgorithmMismatch(t *testing.T) {
	ctx := context.Background()
	src := newMemory(t)
	populate(t, src)

	var buf bytes.Buffer
	_, err := Export(ctx, src, &buf)
	require.NoError(t, err)

	dst, err := memory.New(store.Options{HashAlgorithm: ir.BLAKE3})
	require.NoError(t, err)
	_, err = Import(ctx, dst, &buf)
	assert.ErrorIs(t, err, store.ErrAlgorithmMismatch)
}

// writeFrames builds an archive by hand.
func writeFrames(t *testing.T, frames []frame, end bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	enc := encMode.NewEncoder(zw)
	require.NoError(t, enc.Encode(Header{Magic: Magic, FormatVersion: ir.FormatVersion, HashAlgorithm: ir.SHA256}))

	var entries, actions int
	for _, f := range frames {
		require.NoError(t, enc.Encode(f))
		switch f.Type {
		case frameEntry:
			entries++
		case frameAction:
			actions++
		}
	}
	if end {
		require.NoError(t, enc.Encode(frame{Type: frameEnd, Entries: entries, Actions: actions}))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// framesOf exports b and decodes the frames back.
func framesOf(t *testing.T, b store.Backend) []frame {
	t.Helper()
	var buf bytes.Buffer
	_, err := Export(context.Background(), b, &buf)
	require.NoError(t, err)

	zr, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer zr.Close()
	dec := decMode.NewDecoder(zr)
	_, err = readHeader(dec)
	require.NoError(t, err)

	var frames []frame
	for {
		var f frame
		require.NoError(t, dec.Decode(&f))
		if f.Type == frameEnd {
			return frames
		}
		frames = append(frames, f)
	}
}

func TestImportOutOfOrderActions(t *testing.T) {
	src := newMemory(t)
	populate(t, src)
	frames := framesOf(t, src)

	// Entries first, then actions newest first.
	entries := slices.DeleteFunc(slices.Clone(frames), func(f frame) bool { return f.Type != frameEntry })
	actions := slices.DeleteFunc(slices.Clone(frames), func(f frame) bool { return f.Type != frameAction })
	slices.Reverse(actions)
	data := writeFrames(t, append(entries, actions...), true)

	stats, err := Import(context.Background(), newMemory(t), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Actions)
}

func TestImportDetectsTampering(t *testing.T) {
	src := newMemory(t)
	populate(t, src)
	frames := framesOf(t, src)

	tampered := slices.Clone(frames)
	for i, f := range tampered {
		if f.Type == frameEntry {
			tampered[i].Fields = []byte(`{"title":"forged"}`)
			break
		}
	}
	_, err := Import(context.Background(), newMemory(t), bytes.NewReader(writeFrames(t, tampered, true)))
	assert.ErrorIs(t, err, ErrTampered)

	tampered = slices.Clone(frames)
	for i, f := range tampered {
		if f.Type == frameAction {
			forged := *f.Action
			forged.Author = "mallory"
			tampered[i].Action = &forged
			break
		}
	}
	_, err = Import(context.Background(), newMemory(t), bytes.NewReader(writeFrames(t, tampered, true)))
	assert.ErrorIs(t, err, ErrTampered)
}

func TestImportDetectsTruncation(t *testing.T) {
	src := newMemory(t)
	populate(t, src)
	frames := framesOf(t, src)

	_, err := Import(context.Background(), newMemory(t), bytes.NewReader(writeFrames(t, frames, false)))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestImportRejectsDanglingActions(t *testing.T) {
	src := newMemory(t)
	populate(t, src)
	frames := framesOf(t, src)

	// Drop the create: the update and delete can never be placed.
	var kept []frame
	for _, f := range frames {
		if f.Type == frameAction && f.Action.Type == ir.ActionCreate {
			continue
		}
		kept = append(kept, f)
	}
	_, err := Import(context.Background(), newMemory(t), bytes.NewReader(writeFrames(t, kept, true)))
	assert.ErrorIs(t, err, store.ErrMissingReference)
}

func TestReadHeaderRejectsGarbage(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, encMode.NewEncoder(zw).Encode(Header{Magic: "other"}))
	require.NoError(t, zw.Close())

	_, err = ReadHeader(&buf)
	assert.Error(t, err)
}
