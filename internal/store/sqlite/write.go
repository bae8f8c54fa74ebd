package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// PutEntry stores e under its content address.
// Uses ON CONFLICT(address) DO NOTHING: writing an entry twice is a no-op.
func (s *Store) PutEntry(ctx context.Context, e ir.Entry) (ir.Address, error) {
	if errs := e.Validate(); len(errs) > 0 {
		return "", fmt.Errorf("put entry: %w", errs[0])
	}
	addr, err := s.hasher.EntryAddress(e)
	if err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}
	fields, err := store.MarshalFields(e.Fields)
	if err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (address, kind, fields)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO NOTHING
	`, string(addr), string(e.Kind), fields)
	if err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}
	return addr, nil
}

// PutAction stores a under its content address. The entry and predecessor
// it names must already be stored.
func (s *Store) PutAction(ctx context.Context, a ir.Action) (ir.Address, error) {
	addr, _, err := s.InsertAction(ctx, a)
	return addr, err
}

// InsertAction implements store.ContentStore.
func (s *Store) InsertAction(ctx context.Context, a ir.Action) (ir.Address, bool, error) {
	if errs := a.Validate(); len(errs) > 0 {
		return "", false, fmt.Errorf("put action: %w", errs[0])
	}
	addr, err := s.hasher.ActionAddress(a)
	if err != nil {
		return "", false, fmt.Errorf("put action: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("put action: begin: %w", err)
	}
	defer tx.Rollback()

	if a.EntryAddress != "" {
		if err := requireRow(ctx, tx, `SELECT 1 FROM entries WHERE address = ?`, a.EntryAddress); err != nil {
			return "", false, fmt.Errorf("put action: entry %s: %w", a.EntryAddress.Short(), err)
		}
	}
	if a.Predecessor != "" {
		if err := requireRow(ctx, tx, `SELECT 1 FROM actions WHERE address = ?`, a.Predecessor); err != nil {
			return "", false, fmt.Errorf("put action: predecessor %s: %w", a.Predecessor.Short(), err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO actions (address, type, author, seq, entry_kind, entry_address, predecessor)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING
	`,
		string(addr),
		string(a.Type),
		a.Author,
		a.Seq,
		string(a.EntryKind),
		nullable(a.EntryAddress),
		nullable(a.Predecessor),
	)
	if err != nil {
		return "", false, fmt.Errorf("put action: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("put action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("put action: commit: %w", err)
	}
	return addr, n > 0, nil
}

func requireRow(ctx context.Context, tx *sql.Tx, query string, addr ir.Address) error {
	var one int
	err := tx.QueryRowContext(ctx, query, string(addr)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrMissingReference
	}
	return err
}

func nullable(addr ir.Address) sql.NullString {
	return sql.NullString{String: string(addr), Valid: addr != ""}
}
