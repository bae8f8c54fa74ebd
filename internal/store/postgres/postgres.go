// Package postgres is a store.Backend on PostgreSQL, for stores shared by
// several processes.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store is a PostgreSQL content store.
type Store struct {
	pool   *pgxpool.Pool
	hasher ir.Hasher
	agent  string
}

var _ store.Backend = (*Store)(nil)

// Open connects to dsn, creates the schema if needed and loads the store's
// hash algorithm and agent identity.
func Open(ctx context.Context, dsn string, opts store.Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.loadMeta(ctx, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Agent implements store.Backend.
func (s *Store) Agent() string { return s.agent }

// Hasher implements store.Backend.
func (s *Store) Hasher() ir.Hasher { return s.hasher }

func (s *Store) loadMeta(ctx context.Context, opts store.Options) error {
	// Concurrent first opens race to insert; DO NOTHING plus a re-read
	// makes every process agree on the winner.
	initial := opts.HashAlgorithm
	if initial == "" {
		initial = ir.SHA256
	}
	if err := s.setMeta(ctx, "hash_algorithm", string(initial)); err != nil {
		return err
	}
	stored, err := s.getMeta(ctx, "hash_algorithm")
	if err != nil {
		return err
	}
	if s.hasher, err = store.ChooseAlgorithm(ir.HashAlgorithm(stored), opts.HashAlgorithm); err != nil {
		return err
	}

	if opts.Agent != "" {
		s.agent = opts.Agent
		return nil
	}
	agent, err := store.NewAgent()
	if err != nil {
		return err
	}
	if err := s.setMeta(ctx, "agent", agent); err != nil {
		return err
	}
	s.agent, err = s.getMeta(ctx, "agent")
	return err
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// PutEntry stores e under its content address.
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entries (address, kind, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING`,
		string(addr), string(e.Kind), fields)
	if err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}
	return addr, nil
}

// PutAction stores a under its content address.
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("put action: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.EntryAddress != "" {
		if err := requireRow(ctx, tx, `SELECT 1 FROM entries WHERE address = $1`, a.EntryAddress); err != nil {
			return "", false, fmt.Errorf("put action: entry %s: %w", a.EntryAddress.Short(), err)
		}
	}
	if a.Predecessor != "" {
		if err := requireRow(ctx, tx, `SELECT 1 FROM actions WHERE address = $1`, a.Predecessor); err != nil {
			return "", false, fmt.Errorf("put action: predecessor %s: %w", a.Predecessor.Short(), err)
		}
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO actions (address, type, author, seq, entry_kind, entry_address, predecessor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO NOTHING`,
		string(addr), string(a.Type), a.Author, a.Seq, string(a.EntryKind),
		nullable(a.EntryAddress), nullable(a.Predecessor))
	if err != nil {
		return "", false, fmt.Errorf("put action: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("put action: commit: %w", err)
	}
	return addr, tag.RowsAffected() > 0, nil
}

func requireRow(ctx context.Context, tx pgx.Tx, query string, addr ir.Address) error {
	var one int
	err := tx.QueryRow(ctx, query, string(addr)).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrMissingReference
	}
	return err
}

func nullable(addr ir.Address) *string {
	if addr == "" {
		return nil
	}
	s := string(addr)
	return &s
}

const actionColumns = `
	a.address, a.type, a.author, a.seq, a.entry_kind,
	COALESCE(a.entry_address, ''), COALESCE(a.predecessor, ''),
	e.kind, e.fields
	FROM actions a
	LEFT JOIN entries e ON e.address = a.entry_address`

func scanActionRecord(row pgx.Row) (ir.Record, error) {
	var (
		addr, typ, author, kind, entryAddr, pred string
		seq                                       int64
		entryKind, entryFields                    *string
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
	if entryKind != nil && entryFields != nil {
		fields, err := store.UnmarshalFields(*entryFields)
		if err != nil {
			return ir.Record{}, err
		}
		rec.Entry = &ir.Entry{Kind: ir.EntryKind(*entryKind), Fields: fields}
	}
	return rec, nil
}

// Get returns the record at addr, or nil.
func (s *Store) Get(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	rec, err := scanActionRecord(s.pool.QueryRow(ctx, `SELECT `+actionColumns+` WHERE a.address = $1`, string(addr)))
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", addr.Short(), err)
	}

	var kind, fields string
	err = s.pool.QueryRow(ctx, `SELECT kind, fields FROM entries WHERE address = $1`, string(addr)).Scan(&kind, &fields)
	if errors.Is(err, pgx.ErrNoRows) {
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
			WHERE a.predecessor = $1
			ORDER BY a.seq ASC, a.address COLLATE "C" ASC`, string(addr))
		if err != nil {
			return nil, fmt.Errorf("get details %s: %w", addr.Short(), err)
		}
		return store.NewRecordDetails(*rec, refs), nil
	}
	actions, err := s.queryActions(ctx, `SELECT `+actionColumns+`
		WHERE a.entry_address = $1
		ORDER BY a.seq ASC, a.address COLLATE "C" ASC`, string(addr))
	if err != nil {
		return nil, fmt.Errorf("get details %s: %w", addr.Short(), err)
	}
	return store.NewEntryDetails(*rec, actions), nil
}

func (s *Store) queryActions(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

// MaxSeq returns the highest stored seq, or 0.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM actions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// ScanEntries calls fn for every entry in address order.
func (s *Store) ScanEntries(ctx context.Context, fn func(ir.Address, ir.Entry) error) error {
	rows, err := s.pool.Query(ctx, `SELECT address, kind, fields FROM entries ORDER BY address COLLATE "C" ASC`)
	if err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr, kind, fields string
		if err := rows.Scan(&addr, &kind, &fields); err != nil {
			return fmt.Errorf("scan entries: %w", err)
		}
		obj, err := store.UnmarshalFields(fields)
		if err != nil {
			return fmt.Errorf("scan entries: %s: %w", addr, err)
		}
		if err := fn(ir.Address(addr), ir.Entry{Kind: ir.EntryKind(kind), Fields: obj}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanActions calls fn for every action in seq, address order.
func (s *Store) ScanActions(ctx context.Context, fn func(ir.Address, ir.Action) error) error {
	recs, err := s.queryActions(ctx, `SELECT `+actionColumns+`
		ORDER BY a.seq ASC, a.address COLLATE "C" ASC`)
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
