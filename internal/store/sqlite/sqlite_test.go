package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
	"github.com/roach88/blogchain/internal/store/storetest"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T, opts store.Options) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts store.Options) store.Backend {
		return createTestStore(t, opts)
	})
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t, store.Options{})

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestReopenKeepsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.db")
	ctx := context.Background()

	s, err := Open(path, store.Options{HashAlgorithm: ir.BLAKE3})
	require.NoError(t, err)
	agent := s.Agent()
	addr, err := s.PutEntry(ctx, storetest.Post("kept"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, store.Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, agent, s.Agent())
	assert.Equal(t, ir.BLAKE3, s.Hasher().Algorithm())
	rec, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "kept", rec.Entry.Fields.Str("title"))
}

func TestReopenAlgorithmMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.db")

	s, err := Open(path, store.Options{HashAlgorithm: ir.SHA256})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, store.Options{HashAlgorithm: ir.BLAKE3})
	assert.ErrorIs(t, err, store.ErrAlgorithmMismatch)
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path, store.Options{})
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	s := createTestStore(t, store.Options{})
	ctx := context.Background()

	addr, err := s.PutEntry(ctx, storetest.Post("honest"))
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE entries SET fields = ? WHERE address = ?`, `{"title":"forged"}`, string(addr))
	require.NoError(t, err)

	report, err := store.Verify(ctx, s)
	require.NoError(t, err)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, addr, report.Problems[0].Address)
	assert.Equal(t, store.ProblemAddress, report.Problems[0].Kind)
}
