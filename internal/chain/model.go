package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// maxSeqAttempts bounds how often commit redraws a seq that another writer
// already used for an identical action.
const maxSeqAttempts = 64

// Model builds and persists create, update and delete actions.
type Model struct {
	store  store.ContentStore
	clock  Sequencer
	author string
	logger *slog.Logger
}

// NewModel returns a model writing to st as author, stamping actions with
// seqs from clock. A nil logger uses slog.Default.
func NewModel(st store.ContentStore, clock Sequencer, author string, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{store: st, clock: clock, author: author, logger: logger}
}

// Create stores e and a create action over it. The returned record's
// address is the new record's original address.
func (m *Model) Create(ctx context.Context, e ir.Entry) (ir.Record, error) {
	const op = "create"
	if errs := e.Validate(); len(errs) > 0 {
		return ir.Record{}, validation(op, "", errs[0].Error())
	}
	return m.commit(ctx, op, ir.Action{Type: ir.ActionCreate, EntryKind: e.Kind}, &e)
}

// Update stores e and an update action superseding previous. previous must
// be a stored action of the same entry kind. Updating on top of a deleted
// or superseded action is allowed; the latter forks the chain.
func (m *Model) Update(ctx context.Context, previous ir.Address, e ir.Entry) (ir.Record, error) {
	const op = "update"
	if errs := e.Validate(); len(errs) > 0 {
		return ir.Record{}, validation(op, previous, errs[0].Error())
	}
	prev, err := m.predecessor(ctx, op, previous)
	if err != nil {
		return ir.Record{}, err
	}
	if prev.EntryKind != e.Kind {
		return ir.Record{}, validation(op, previous,
			fmt.Sprintf("cannot update a %s with a %s entry", prev.EntryKind, e.Kind))
	}
	return m.commit(ctx, op, ir.Action{Type: ir.ActionUpdate, EntryKind: e.Kind, Predecessor: previous}, &e)
}

// Delete stores a delete action targeting target, which must be a stored
// action. The record's history is kept.
func (m *Model) Delete(ctx context.Context, target ir.Address) (ir.Record, error) {
	const op = "delete"
	prev, err := m.predecessor(ctx, op, target)
	if err != nil {
		return ir.Record{}, err
	}
	return m.commit(ctx, op, ir.Action{Type: ir.ActionDelete, EntryKind: prev.EntryKind, Predecessor: target}, nil)
}

// predecessor fetches the action at addr, failing NOT_FOUND when addr is
// unknown or names an entry.
func (m *Model) predecessor(ctx context.Context, op string, addr ir.Address) (*ir.Action, error) {
	rec, err := m.store.Get(ctx, addr)
	if err != nil {
		return nil, storageFailure(op, addr, err)
	}
	if rec == nil || !rec.IsAction() {
		return nil, notFound(op, addr, "no action at address")
	}
	return rec.Action, nil
}

func (m *Model) commit(ctx context.Context, op string, a ir.Action, e *ir.Entry) (ir.Record, error) {
	if e != nil {
		addr, err := m.store.PutEntry(ctx, *e)
		if err != nil {
			return ir.Record{}, storageFailure(op, "", err)
		}
		a.EntryAddress = addr
	}
	a.Author = m.author

	// Another writer sharing this author can hold the seq just drawn; an
	// identical action there would collapse into the existing address.
	var addr ir.Address
	for attempt := 0; ; attempt++ {
		if attempt == maxSeqAttempts {
			return ir.Record{}, storageFailure(op, a.Predecessor,
				fmt.Errorf("no free seq after %d attempts", maxSeqAttempts))
		}
		a.Seq = m.clock.Next()
		got, inserted, err := m.store.InsertAction(ctx, a)
		if errors.Is(err, store.ErrMissingReference) {
			return ir.Record{}, &Error{Code: CodeNotFound, Op: op, Address: a.Predecessor, Message: "reference vanished", Err: err}
		}
		if err != nil {
			return ir.Record{}, storageFailure(op, a.Predecessor, err)
		}
		if inserted {
			addr = got
			break
		}
		m.logger.Debug("seq taken, redrawing", "op", op, "seq", a.Seq, "address", got.Short())
	}

	m.logger.Debug("action committed",
		"op", op,
		"address", addr.Short(),
		"seq", a.Seq,
		"kind", a.EntryKind,
		"predecessor", a.Predecessor.Short(),
	)
	return ir.Record{Address: addr, Action: &a, Entry: e}, nil
}
