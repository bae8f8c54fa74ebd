// Package blog exposes the create, read, update and delete operations for
// posts and comments on top of the action chain.
package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/blogchain/internal/chain"
	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/schema"
	"github.com/roach88/blogchain/internal/store"
)

// Options tunes a Service.
type Options struct {
	// MaxHops bounds resolve walks. Zero selects chain.DefaultMaxHops.
	MaxHops int

	// Clock overrides the sequencer. Nil seeds a clock from the backend.
	Clock chain.Sequencer

	Logger *slog.Logger
}

// Service implements the entry operations.
type Service struct {
	store     store.ContentStore
	model     *chain.Model
	resolver  *chain.Resolver
	validator *schema.Validator
	logger    *slog.Logger
}

// New returns a service writing to b as b's agent.
func New(ctx context.Context, b store.Backend, v *schema.Validator, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		seeded, err := chain.SeedClock(ctx, b)
		if err != nil {
			return nil, err
		}
		clock = seeded
	}
	return &Service{
		store:     b,
		model:     chain.NewModel(b, clock, b.Agent(), logger),
		resolver:  chain.NewResolver(b, opts.MaxHops, logger),
		validator: v,
		logger:    logger,
	}, nil
}

// Details returns the one-hop details at addr, or nil.
func (s *Service) Details(ctx context.Context, addr ir.Address) (ir.Details, error) {
	d, err := s.store.GetDetails(ctx, addr)
	if err != nil {
		return nil, chain.NewError(chain.CodeStorageFailure, "details", addr, "", err)
	}
	return d, nil
}

// Step looks one hop forward from addr.
func (s *Service) Step(ctx context.Context, addr ir.Address) (chain.Step, error) {
	return s.resolver.Step(ctx, addr)
}

// Resolve walks from addr to the chain's current state.
func (s *Service) Resolve(ctx context.Context, addr ir.Address) (chain.Resolution, error) {
	return s.resolver.Resolve(ctx, addr)
}

// requireAction fetches the action at addr and checks its kind. Fails
// NOT_FOUND when addr is not a stored action and VALIDATION on a kind
// mismatch.
func (s *Service) requireAction(ctx context.Context, op string, addr ir.Address, want ir.EntryKind) (*ir.Record, error) {
	rec, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, chain.NewError(chain.CodeStorageFailure, op, addr, "", err)
	}
	if rec == nil || !rec.IsAction() {
		return nil, chain.NewError(chain.CodeNotFound, op, addr, "no action at address", nil)
	}
	if rec.Action.EntryKind != want {
		return nil, chain.NewError(chain.CodeValidation, op, addr,
			fmt.Sprintf("address holds a %s, not a %s", rec.Action.EntryKind, want), nil)
	}
	return rec, nil
}

// confirm re-reads a freshly written action. An empty read is a
// consistency fault of the store. verb names the write in the error.
func (s *Service) confirm(ctx context.Context, op, verb string, k ir.EntryKind, addr ir.Address) (ir.Record, error) {
	rec, err := s.store.Get(ctx, addr)
	if err != nil {
		return ir.Record{}, chain.NewError(chain.CodeStorageFailure, op, addr, "", err)
	}
	if rec == nil || !rec.IsAction() {
		return ir.Record{}, chain.NewError(chain.CodeStorageFailure, op, addr,
			fmt.Sprintf("could not find the newly %s %s", verb, k), nil)
	}
	return *rec, nil
}

// withOp relabels a chain error with the public operation name.
func withOp(op string, err error) error {
	var ce *chain.Error
	if errors.As(err, &ce) {
		relabeled := *ce
		relabeled.Op = op
		return &relabeled
	}
	return err
}

func (s *Service) validate(op string, e ir.Entry, addr ir.Address) error {
	if err := s.validator.Validate(e); err != nil {
		return chain.NewError(chain.CodeValidation, op, addr, err.Error(), err)
	}
	return nil
}

func create[T any](ctx context.Context, s *Service, k kind[T], payload T) (ir.Record, error) {
	op := "create_" + string(k.name)
	entry := ir.Entry{Kind: k.name, Fields: k.fields(payload)}
	if err := s.validate(op, entry, ""); err != nil {
		return ir.Record{}, err
	}
	if k.check != nil {
		if err := k.check(ctx, s, op, payload); err != nil {
			return ir.Record{}, err
		}
	}

	rec, err := s.model.Create(ctx, entry)
	if err != nil {
		return ir.Record{}, withOp(op, err)
	}
	s.logger.Info("record created", "op", op, "address", rec.Address.Short(), "seq", rec.Action.Seq)
	return s.confirm(ctx, op, "created", k.name, rec.Address)
}

func getOriginal[T any](ctx context.Context, s *Service, k kind[T], addr ir.Address) (*ir.Record, error) {
	op := "get_original_" + string(k.name)
	d, err := s.store.GetDetails(ctx, addr)
	if err != nil {
		return nil, chain.NewError(chain.CodeStorageFailure, op, addr, "", err)
	}
	if d == nil {
		return nil, nil
	}
	rd, ok := d.(ir.RecordDetails)
	if !ok || rd.Record.Action == nil {
		return nil, chain.NewError(chain.CodeMalformedResponse, op, addr,
			fmt.Sprintf("malformed get details response: %T", d), nil)
	}
	if rd.Record.Action.EntryKind != k.name {
		return nil, chain.NewError(chain.CodeValidation, op, addr,
			fmt.Sprintf("address holds a %s, not a %s", rd.Record.Action.EntryKind, k.name), nil)
	}
	rec := rd.Record
	return &rec, nil
}

func update[T any](ctx context.Context, s *Service, k kind[T], previous ir.Address, payload T) (ir.Record, error) {
	op := "update_" + string(k.name)
	entry := ir.Entry{Kind: k.name, Fields: k.fields(payload)}
	if err := s.validate(op, entry, previous); err != nil {
		return ir.Record{}, err
	}
	if k.check != nil {
		if err := k.check(ctx, s, op, payload); err != nil {
			return ir.Record{}, err
		}
	}

	rec, err := s.model.Update(ctx, previous, entry)
	if err != nil {
		return ir.Record{}, withOp(op, err)
	}
	s.logger.Info("record updated", "op", op, "address", rec.Address.Short(), "previous", previous.Short(), "seq", rec.Action.Seq)
	return s.confirm(ctx, op, "updated", k.name, rec.Address)
}

func remove[T any](ctx context.Context, s *Service, k kind[T], addr ir.Address) (ir.Address, error) {
	op := "delete_" + string(k.name)
	if _, err := s.requireAction(ctx, op, addr, k.name); err != nil {
		return "", err
	}
	rec, err := s.model.Delete(ctx, addr)
	if err != nil {
		return "", withOp(op, err)
	}
	s.logger.Info("record deleted", "op", op, "address", rec.Address.Short(), "target", addr.Short(), "seq", rec.Action.Seq)
	return rec.Address, nil
}

func latest[T any](ctx context.Context, s *Service, k kind[T], addr ir.Address) (*ir.Record, error) {
	op := "get_latest_" + string(k.name)
	res, err := s.resolver.Resolve(ctx, addr)
	if err != nil {
		return nil, withOp(op, err)
	}
	switch res.State {
	case chain.StateNotFound, chain.StateDeleted:
		return nil, nil
	case chain.StateForked:
		return nil, &chain.Error{
			Code:       chain.CodeForked,
			Op:         op,
			Address:    res.Head.Address,
			Message:    fmt.Sprintf("%d competing updates", len(res.Forks)),
			Candidates: res.Forks,
		}
	}
	if res.Head.Action.EntryKind != k.name {
		return nil, chain.NewError(chain.CodeValidation, op, addr,
			fmt.Sprintf("address holds a %s, not a %s", res.Head.Action.EntryKind, k.name), nil)
	}
	return res.Head, nil
}

func revisions[T any](ctx context.Context, s *Service, k kind[T], addr ir.Address) ([]ir.Record, error) {
	op := "get_" + string(k.name) + "_revisions"
	if _, err := s.requireAction(ctx, op, addr, k.name); err != nil {
		return nil, err
	}
	res, err := s.resolver.Resolve(ctx, addr)
	if err != nil {
		return nil, withOp(op, err)
	}
	out := make([]ir.Record, 0, len(res.Path))
	for _, a := range res.Path {
		rec, err := s.store.Get(ctx, a)
		if err != nil {
			return nil, chain.NewError(chain.CodeStorageFailure, op, a, "", err)
		}
		if rec == nil {
			return nil, chain.NewError(chain.CodeStorageFailure, op, a, "revision vanished", nil)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func deletes[T any](ctx context.Context, s *Service, k kind[T], addr ir.Address) ([]ir.Record, error) {
	op := "get_" + string(k.name) + "_deletes"
	if _, err := s.requireAction(ctx, op, addr, k.name); err != nil {
		return nil, err
	}
	d, err := s.store.GetDetails(ctx, addr)
	if err != nil {
		return nil, chain.NewError(chain.CodeStorageFailure, op, addr, "", err)
	}
	rd, ok := d.(ir.RecordDetails)
	if !ok {
		return nil, chain.NewError(chain.CodeMalformedResponse, op, addr,
			fmt.Sprintf("malformed get details response: %T", d), nil)
	}
	return rd.Deletes, nil
}

func decode[T any](k kind[T], rec ir.Record) (T, error) {
	var zero T
	if rec.Entry == nil {
		return zero, chain.NewError(chain.CodeValidation, "decode_"+string(k.name), rec.Address, "record carries no entry", nil)
	}
	if rec.Entry.Kind != k.name {
		return zero, chain.NewError(chain.CodeValidation, "decode_"+string(k.name), rec.Address,
			fmt.Sprintf("record holds a %s, not a %s", rec.Entry.Kind, k.name), nil)
	}
	return k.decode(rec.Entry.Fields), nil
}
