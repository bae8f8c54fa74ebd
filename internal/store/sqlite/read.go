package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// actionColumns selects an action joined with its entry. Every query that
// returns actions uses it so rows scan through scanActionRecord.
const actionColumns = `
	a.address, a.type, a.author, a.seq, a.entry_kind,
	COALESCE(a.entry_address, ''), COALESCE(a.predecessor, ''),
	e.kind, e.fields
	FROM actions a
	LEFT JOIN entries e ON e.address = a.entry_address`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActionRecord(row rowScanner) (ir.Record, error) {
	var (
		addr, typ, author, kind, entryAddr, pred string
		seq                                       int64
		entryKind, entryFields                    sql.NullString
	)
	if err := row.Scan(&addr, &typ, &author, &seq, &kind, &entryAddr, &pred, &entryKind, &entryFields); err != nil {
		return ir.Record{}, err
	}

	rec := ir.Record{
		Address: ir.Address(addr),
		Action: &ir.Action{
			Type:         ir.ActionType(typ),
			Author:       author,
			Seq:          seq,
			EntryKind:    ir.EntryKind(kind),
			EntryAddress: ir.Address(entryAddr),
			Predecessor:  ir.Address(pred),
		},
	}
	if entryKind.Valid {
		fields, err := store.UnmarshalFields(entryFields.String)
		if err != nil {
			return ir.Record{}, err
		}
		rec.Entry = &ir.Entry{Kind: ir.EntryKind(entryKind.String), Fields: fields}
	}
	return rec, nil
}

// Get returns the record at addr, or nil.
func (s *Store) Get(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` WHERE a.address = ?`, string(addr))
	rec, err := scanActionRecord(row)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", addr.Short(), err)
	}

	var kind, fields string
	err = s.db.QueryRowContext(ctx, `SELECT kind, fields FROM entries WHERE address = ?`, string(addr)).Scan(&kind, &fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", addr.Short(), err)
	}
	obj, err := store.UnmarshalFields(fields)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", addr.Short(), err)
	}
	return &ir.Record{Address: addr, Entry: &ir.Entry{Kind: ir.EntryKind(kind), Fields: obj}}, nil
}

// GetDetails returns the details at addr, or nil.
func (s *Store) GetDetails(ctx context.Context, addr ir.Address) (ir.Details, error) {
	rec, err := s.Get(ctx, addr)
	if err != nil || rec == nil {
		return nil, err
	}

	if rec.IsAction() {
		refs, err := s.queryActions(ctx, `SELECT `+actionColumns+`
			WHERE a.predecessor = ?
			ORDER BY a.seq ASC, a.address ASC COLLATE BINARY`, string(addr))
		if err != nil {
			return nil, fmt.Errorf("get details %s: %w", addr.Short(), err)
		}
		return store.NewRecordDetails(*rec, refs), nil
	}

	actions, err := s.queryActions(ctx, `SELECT `+actionColumns+`
		WHERE a.entry_address = ?
		ORDER BY a.seq ASC, a.address ASC COLLATE BINARY`, string(addr))
	if err != nil {
		return nil, fmt.Errorf("get details %s: %w", addr.Short(), err)
	}
	return store.NewEntryDetails(*rec, actions), nil
}

// queryActions runs query and collects every row before returning, so the
// single connection is free again when callers act on the results.
func (s *Store) queryActions(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ir.Record
	for rows.Next() {
		rec, err := scanActionRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MaxSeq returns the highest stored seq, or 0 for an empty store.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM actions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// ScanEntries calls fn for every entry in address order. Rows are read
// before fn runs, so fn may call back into the store.
func (s *Store) ScanEntries(ctx context.Context, fn func(ir.Address, ir.Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT address, kind, fields FROM entries ORDER BY address ASC COLLATE BINARY`)
	if err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}

	type row struct {
		addr  ir.Address
		entry ir.Entry
	}
	var all []row
	for rows.Next() {
		var addr, kind, fields string
		if err := rows.Scan(&addr, &kind, &fields); err != nil {
			rows.Close()
			return fmt.Errorf("scan entries: %w", err)
		}
		obj, err := store.UnmarshalFields(fields)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan entries: %s: %w", addr, err)
		}
		all = append(all, row{ir.Address(addr), ir.Entry{Kind: ir.EntryKind(kind), Fields: obj}})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}

	for _, r := range all {
		if err := fn(r.addr, r.entry); err != nil {
			return err
		}
	}
	return nil
}

// ScanActions calls fn for every action in seq, address order. Like
// ScanEntries, fn may call back into the store.
func (s *Store) ScanActions(ctx context.Context, fn func(ir.Address, ir.Action) error) error {
	recs, err := s.queryActions(ctx, `SELECT `+actionColumns+`
		ORDER BY a.seq ASC, a.address ASC COLLATE BINARY`)
	if err != nil {
		return fmt.Errorf("scan actions: %w", err)
	}
	for _, rec := range recs {
		if err := fn(rec.Address, *rec.Action); err != nil {
			return err
		}
	}
	return nil
}
