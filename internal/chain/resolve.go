package chain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// DefaultMaxHops bounds a Resolve walk.
const DefaultMaxHops = 1024

// StepKind is the outcome of one resolver hop.
type StepKind string

const (
	StepNotFound StepKind = "not_found"
	StepDeleted  StepKind = "deleted"
	StepAdvance  StepKind = "advance"
	StepForked   StepKind = "forked"
	StepHead     StepKind = "head"
)

// Step is the result of looking one hop forward from an address.
type Step struct {
	Kind StepKind `json:"kind"`

	// Record is the action at the address. Nil for StepNotFound.
	Record *ir.Record `json:"record,omitempty"`

	// Next is the single superseding update, for StepAdvance.
	Next ir.Address `json:"next,omitempty"`

	// Candidates are the competing updates, for StepForked, in seq order.
	Candidates []ir.Address `json:"candidates,omitempty"`

	// DeletedBy lists the deletes targeting the address, for StepDeleted.
	// Empty when the action at the address is itself a delete.
	DeletedBy []ir.Address `json:"deleted_by,omitempty"`
}

// State is the resolved state of a record.
type State string

const (
	StateLive     State = "live"
	StateDeleted  State = "deleted"
	StateForked   State = "forked"
	StateNotFound State = "not_found"
)

// Resolution is the outcome of walking a chain to its end.
type Resolution struct {
	State State `json:"state"`

	// Origin is the address the walk started from.
	Origin ir.Address `json:"origin"`

	// Head is the last action reached: the live head, the deleted action,
	// or the fork point. Nil for StateNotFound.
	Head *ir.Record `json:"head,omitempty"`

	// Path lists every action visited, Origin first.
	Path []ir.Address `json:"path"`

	// Hops counts advances taken.
	Hops int `json:"hops"`

	Forks     []ir.Address `json:"forks,omitempty"`
	DeletedBy []ir.Address `json:"deleted_by,omitempty"`
}

// Resolver locates the current state of records.
type Resolver struct {
	store   store.ContentStore
	maxHops int
	logger  *slog.Logger
}

// NewResolver returns a resolver reading st. maxHops <= 0 selects
// DefaultMaxHops. A nil logger uses slog.Default.
func NewResolver(st store.ContentStore, maxHops int, logger *slog.Logger) *Resolver {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, maxHops: maxHops, logger: logger}
}

// Step looks one hop forward from addr.
func (r *Resolver) Step(ctx context.Context, addr ir.Address) (Step, error) {
	const op = "step"
	d, err := r.store.GetDetails(ctx, addr)
	if err != nil {
		return Step{}, storageFailure(op, addr, err)
	}
	rd, ok := d.(ir.RecordDetails)
	if !ok || rd.Record.Action == nil {
		// Unknown, or the address of an entry rather than an action.
		return Step{Kind: StepNotFound}, nil
	}

	rec := rd.Record
	switch {
	case rec.Action.Type == ir.ActionDelete:
		return Step{Kind: StepDeleted, Record: &rec}, nil
	case len(rd.Deletes) > 0:
		return Step{Kind: StepDeleted, Record: &rec, DeletedBy: addressesOf(rd.Deletes)}, nil
	case len(rd.Updates) == 1:
		return Step{Kind: StepAdvance, Record: &rec, Next: rd.Updates[0].Address}, nil
	case len(rd.Updates) > 1:
		return Step{Kind: StepForked, Record: &rec, Candidates: addressesOf(rd.Updates)}, nil
	default:
		return Step{Kind: StepHead, Record: &rec}, nil
	}
}

// Resolve applies Step from addr until the walk reaches a head, a delete
// or a fork.
func (r *Resolver) Resolve(ctx context.Context, addr ir.Address) (Resolution, error) {
	const op = "resolve"
	res := Resolution{Origin: addr, Path: []ir.Address{}}
	cur := addr

	for {
		step, err := r.Step(ctx, cur)
		if err != nil {
			return res, err
		}

		if step.Kind == StepNotFound {
			if res.Hops == 0 {
				res.State = StateNotFound
				return res, nil
			}
			// The store just reported cur as an update of the previous hop.
			return res, storageFailure(op, cur, fmt.Errorf("forward reference from %s vanished", res.Path[len(res.Path)-1].Short()))
		}

		res.Path = append(res.Path, cur)
		res.Head = step.Record

		switch step.Kind {
		case StepHead:
			res.State = StateLive
			return res, nil
		case StepDeleted:
			res.State = StateDeleted
			res.DeletedBy = step.DeletedBy
			return res, nil
		case StepForked:
			res.State = StateForked
			res.Forks = step.Candidates
			r.logger.Debug("chain forked", "origin", addr.Short(), "at", cur.Short(), "candidates", len(step.Candidates))
			return res, nil
		}

		res.Hops++
		if res.Hops > r.maxHops {
			return res, &Error{
				Code:    CodeChainTooDeep,
				Op:      op,
				Address: addr,
				Message: fmt.Sprintf("chain exceeds %d hops", r.maxHops),
			}
		}
		cur = step.Next
	}
}

func addressesOf(recs []ir.Record) []ir.Address {
	out := make([]ir.Address, len(recs))
	for i, rec := range recs {
		out[i] = rec.Address
	}
	return out
}
