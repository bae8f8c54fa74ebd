// Package memory is an in-process store.Backend for tests and ephemeral
// use. Nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// Store keeps entries and actions in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	hasher   ir.Hasher
	agent    string
	entries  map[ir.Address]ir.Entry
	actions  map[ir.Address]ir.Action
	forward  map[ir.Address][]ir.Address // predecessor -> actions
	carriers map[ir.Address][]ir.Address // entry -> actions
}

var _ store.Backend = (*Store)(nil)

// New returns an empty store.
func New(opts store.Options) (*Store, error) {
	hasher, err := ir.NewHasher(opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	agent := opts.Agent
	if agent == "" {
		if agent, err = store.NewAgent(); err != nil {
			return nil, err
		}
	}
	return &Store{
		hasher:   hasher,
		agent:    agent,
		entries:  make(map[ir.Address]ir.Entry),
		actions:  make(map[ir.Address]ir.Action),
		forward:  make(map[ir.Address][]ir.Address),
		carriers: make(map[ir.Address][]ir.Address),
	}, nil
}

// Agent implements store.Backend.
func (s *Store) Agent() string { return s.agent }

// Hasher implements store.Backend.
func (s *Store) Hasher() ir.Hasher { return s.hasher }

// Close implements store.Backend. The data stays readable.
func (s *Store) Close() error { return nil }

// PutEntry stores e under its content address.
func (s *Store) PutEntry(_ context.Context, e ir.Entry) (ir.Address, error) {
	if errs := e.Validate(); len(errs) > 0 {
		return "", fmt.Errorf("put entry: %w", errs[0])
	}
	addr, err := s.hasher.EntryAddress(e)
	if err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}
	// Round-trip through the stored form so callers cannot mutate the
	// stored fields through their map.
	fields, err := copyFields(e.Fields)
	if err != nil {
		return "", fmt.Errorf("put entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[addr]; !ok {
		s.entries[addr] = ir.Entry{Kind: e.Kind, Fields: fields}
	}
	return addr, nil
}

// PutAction stores a under its content address.
func (s *Store) PutAction(ctx context.Context, a ir.Action) (ir.Address, error) {
	addr, _, err := s.InsertAction(ctx, a)
	return addr, err
}

// InsertAction implements store.ContentStore.
func (s *Store) InsertAction(_ context.Context, a ir.Action) (ir.Address, bool, error) {
	if errs := a.Validate(); len(errs) > 0 {
		return "", false, fmt.Errorf("put action: %w", errs[0])
	}
	addr, err := s.hasher.ActionAddress(a)
	if err != nil {
		return "", false, fmt.Errorf("put action: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a.EntryAddress != "" {
		if _, ok := s.entries[a.EntryAddress]; !ok {
			return "", false, fmt.Errorf("put action: entry %s: %w", a.EntryAddress.Short(), store.ErrMissingReference)
		}
	}
	if a.Predecessor != "" {
		if _, ok := s.actions[a.Predecessor]; !ok {
			return "", false, fmt.Errorf("put action: predecessor %s: %w", a.Predecessor.Short(), store.ErrMissingReference)
		}
	}
	if _, ok := s.actions[addr]; ok {
		return addr, false, nil
	}

	s.actions[addr] = a
	if a.Predecessor != "" {
		s.forward[a.Predecessor] = append(s.forward[a.Predecessor], addr)
	}
	if a.EntryAddress != "" {
		s.carriers[a.EntryAddress] = append(s.carriers[a.EntryAddress], addr)
	}
	return addr, true, nil
}

// Get returns the record at addr, or nil.
func (s *Store) Get(_ context.Context, addr ir.Address) (*ir.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(addr)
}

// get requires s.mu to be held.
func (s *Store) get(addr ir.Address) (*ir.Record, error) {
	if a, ok := s.actions[addr]; ok {
		return s.actionRecord(addr, a)
	}
	if e, ok := s.entries[addr]; ok {
		fields, err := copyFields(e.Fields)
		if err != nil {
			return nil, err
		}
		return &ir.Record{Address: addr, Entry: &ir.Entry{Kind: e.Kind, Fields: fields}}, nil
	}
	return nil, nil
}

func (s *Store) actionRecord(addr ir.Address, a ir.Action) (*ir.Record, error) {
	rec := &ir.Record{Address: addr, Action: &a}
	if a.EntryAddress != "" {
		e := s.entries[a.EntryAddress]
		fields, err := copyFields(e.Fields)
		if err != nil {
			return nil, err
		}
		rec.Entry = &ir.Entry{Kind: e.Kind, Fields: fields}
	}
	return rec, nil
}

// GetDetails returns the details at addr, or nil.
func (s *Store) GetDetails(_ context.Context, addr ir.Address) (ir.Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.get(addr)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.IsAction() {
		refs, err := s.records(s.forward[addr])
		if err != nil {
			return nil, err
		}
		return store.NewRecordDetails(*rec, refs), nil
	}
	actions, err := s.records(s.carriers[addr])
	if err != nil {
		return nil, err
	}
	return store.NewEntryDetails(*rec, actions), nil
}

func (s *Store) records(addrs []ir.Address) ([]ir.Record, error) {
	out := make([]ir.Record, 0, len(addrs))
	for _, addr := range addrs {
		rec, err := s.actionRecord(addr, s.actions[addr])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// MaxSeq returns the highest stored seq, or 0.
func (s *Store) MaxSeq(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var seq int64
	for _, a := range s.actions {
		seq = max(seq, a.Seq)
	}
	return seq, nil
}

// ScanEntries calls fn for every entry in address order. fn runs without
// the lock held.
func (s *Store) ScanEntries(_ context.Context, fn func(ir.Address, ir.Entry) error) error {
	s.mu.RLock()
	addrs := make([]ir.Address, 0, len(s.entries))
	for addr := range s.entries {
		addrs = append(addrs, addr)
	}
	entries := make(map[ir.Address]ir.Entry, len(addrs))
	for _, addr := range addrs {
		entries[addr] = s.entries[addr]
	}
	s.mu.RUnlock()

	slices.Sort(addrs)
	for _, addr := range addrs {
		if err := fn(addr, entries[addr]); err != nil {
			return err
		}
	}
	return nil
}

// ScanActions calls fn for every action in seq, address order. fn runs
// without the lock held.
func (s *Store) ScanActions(_ context.Context, fn func(ir.Address, ir.Action) error) error {
	s.mu.RLock()
	recs := make([]ir.Record, 0, len(s.actions))
	for addr, a := range s.actions {
		a := a
		recs = append(recs, ir.Record{Address: addr, Action: &a})
	}
	s.mu.RUnlock()

	store.SortRecords(recs)
	for _, rec := range recs {
		if err := fn(rec.Address, *rec.Action); err != nil {
			return err
		}
	}
	return nil
}

func copyFields(fields ir.Object) (ir.Object, error) {
	data, err := store.MarshalFields(fields)
	if err != nil {
		return nil, err
	}
	return store.UnmarshalFields(data)
}
