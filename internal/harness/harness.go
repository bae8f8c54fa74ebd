package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/roach88/blogchain/internal/blog"
	"github.com/roach88/blogchain/internal/chain"
	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/testutil"
)

// Harness executes scenario steps against one service.
type Harness struct {
	env     *testutil.Env
	aliases *aliases
	logger  *slog.Logger
}

// Run executes a scenario on a fresh memory store with a deterministic
// clock and agent, and returns the trace with any failed expectations.
// The error is reserved for scenarios that cannot run at all, such as a
// ref to an alias that was never bound.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, slog.Default())
}

// RunWithLogger is Run with step logging sent to logger.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	env, err := testutil.NewEnv(ctx, scenario.Author, scenario.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h := &Harness{env: env, aliases: newAliases(), logger: logger}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		ev.Index = i + 1
		result.AddEvent(ev)

		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
		}
		h.logger.Debug("scenario step completed",
			"scenario", scenario.Name,
			"step", ev.Index,
			"op", step.Op,
			"outcome", ev.Outcome,
		)
	}

	actx := &AssertionContext{Store: env.Store, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step. Operation failures become the event's outcome.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Op: step.Op, Ref: step.Ref, As: step.As, Outcome: OutcomeOK}

	var ref ir.Address
	if step.Ref != "" {
		addr, err := h.aliases.resolve(step.Ref)
		if err != nil {
			return ev, err
		}
		ref = addr
	}

	result, err := h.invoke(ctx, step, ref)
	if err != nil {
		code := chain.CodeOf(err)
		if code == "" {
			return ev, err
		}
		ev.Outcome = string(code)
		var ce *chain.Error
		if errors.As(err, &ce) && len(ce.Candidates) > 0 {
			ev.Result = map[string]any{"candidates": h.aliases.names(ce.Candidates)}
		}
		return ev, nil
	}
	ev.Result = result
	return ev, nil
}

func (h *Harness) invoke(ctx context.Context, step Step, ref ir.Address) (map[string]any, error) {
	svc := h.env.Service

	switch step.Op {
	case OpCreatePost:
		rec, err := svc.CreatePost(ctx, *step.Post)
		return h.written(step.As, rec, err)
	case OpCreateComment:
		c, err := h.comment(step.Comment)
		if err != nil {
			return nil, err
		}
		rec, err := svc.CreateComment(ctx, c)
		return h.written(step.As, rec, err)
	case OpUpdatePost:
		rec, err := svc.UpdatePost(ctx, ref, *step.Post)
		return h.written(step.As, rec, err)
	case OpUpdateComment:
		c, err := h.comment(step.Comment)
		if err != nil {
			return nil, err
		}
		rec, err := svc.UpdateComment(ctx, ref, c)
		return h.written(step.As, rec, err)
	case OpDeletePost:
		addr, err := svc.DeletePost(ctx, ref)
		return h.deleted(step.As, addr, err)
	case OpDeleteComment:
		addr, err := svc.DeleteComment(ctx, ref)
		return h.deleted(step.As, addr, err)
	case OpGetOriginalPost:
		return h.found(svc.GetOriginalPost(ctx, ref))
	case OpGetOriginalComment:
		return h.found(svc.GetOriginalComment(ctx, ref))
	case OpLatestPost:
		return h.latest(svc.GetLatestPost(ctx, ref))
	case OpLatestComment:
		return h.latest(svc.GetLatestComment(ctx, ref))
	case OpPostRevisions:
		recs, err := svc.GetPostRevisions(ctx, ref)
		return h.listed("path", recs, err)
	case OpCommentRevisions:
		recs, err := svc.GetCommentRevisions(ctx, ref)
		return h.listed("path", recs, err)
	case OpPostDeletes:
		recs, err := svc.GetPostDeletes(ctx, ref)
		return h.listed("deletes", recs, err)
	case OpCommentDeletes:
		recs, err := svc.GetCommentDeletes(ctx, ref)
		return h.listed("deletes", recs, err)
	case OpResolve:
		res, err := svc.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		return h.resolution(res), nil
	case OpStep:
		st, err := svc.Step(ctx, ref)
		if err != nil {
			return nil, err
		}
		return h.step(st), nil
	case OpDetails:
		d, err := svc.Details(ctx, ref)
		if err != nil {
			return nil, err
		}
		return h.details(d), nil
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// comment swaps an alias in the target for the address it names.
func (h *Harness) comment(c *blog.Comment) (blog.Comment, error) {
	out := *c
	if c.Target == "" {
		return out, nil
	}
	addr, err := h.aliases.resolve(string(c.Target))
	if err != nil {
		return out, fmt.Errorf("comment target: %w", err)
	}
	out.Target = addr
	return out, nil
}

func (h *Harness) written(as string, rec ir.Record, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if as != "" {
		h.aliases.bind(as, rec.Address)
		if rec.Action.EntryAddress != "" {
			h.aliases.bind(entryPrefix+as, rec.Action.EntryAddress)
		}
	}
	return h.record(rec), nil
}

func (h *Harness) deleted(as string, addr ir.Address, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if as != "" {
		h.aliases.bind(as, addr)
	}
	return map[string]any{"address": h.aliases.name(addr)}, nil
}

func (h *Harness) found(rec *ir.Record, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return map[string]any{"found": false}, nil
	}
	out := h.record(*rec)
	out["found"] = true
	return out, nil
}

func (h *Harness) latest(rec *ir.Record, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return map[string]any{"found": false}, nil
	}
	out := map[string]any{
		"found": true,
		"head":  h.aliases.name(rec.Address),
	}
	if rec.Entry != nil {
		out["fields"] = h.fields(rec.Entry.Fields)
	}
	return out, nil
}

func (h *Harness) listed(key string, recs []ir.Record, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{key: h.aliases.names(addressesOf(recs))}, nil
}

func (h *Harness) record(rec ir.Record) map[string]any {
	out := map[string]any{"address": h.aliases.name(rec.Address)}
	if rec.Action != nil {
		out["type"] = string(rec.Action.Type)
		out["seq"] = rec.Action.Seq
		if rec.Action.EntryAddress != "" {
			out["entry"] = h.aliases.name(rec.Action.EntryAddress)
		}
	}
	if rec.Entry != nil {
		out["kind"] = string(rec.Entry.Kind)
		out["fields"] = h.fields(rec.Entry.Fields)
	}
	return out
}

func (h *Harness) resolution(res chain.Resolution) map[string]any {
	out := map[string]any{
		"state": string(res.State),
		"hops":  res.Hops,
		"path":  h.aliases.names(res.Path),
	}
	if res.Head != nil {
		out["head"] = h.aliases.name(res.Head.Address)
	}
	if len(res.Forks) > 0 {
		out["candidates"] = h.aliases.names(res.Forks)
	}
	if len(res.DeletedBy) > 0 {
		out["deleted_by"] = h.aliases.names(res.DeletedBy)
	}
	return out
}

func (h *Harness) step(st chain.Step) map[string]any {
	out := map[string]any{"state": string(st.Kind)}
	if st.Next != "" {
		out["next"] = h.aliases.name(st.Next)
	}
	if len(st.Candidates) > 0 {
		out["candidates"] = h.aliases.names(st.Candidates)
	}
	if len(st.DeletedBy) > 0 {
		out["deleted_by"] = h.aliases.names(st.DeletedBy)
	}
	return out
}

func (h *Harness) details(d ir.Details) map[string]any {
	switch d := d.(type) {
	case ir.RecordDetails:
		return map[string]any{
			"found":   true,
			"updates": h.aliases.names(addressesOf(d.Updates)),
			"deletes": h.aliases.names(addressesOf(d.Deletes)),
		}
	case ir.EntryDetails:
		return map[string]any{
			"found":   true,
			"actions": h.aliases.names(addressesOf(d.Actions)),
		}
	default:
		return map[string]any{"found": false}
	}
}

// fields renders entry fields with stored addresses shown as aliases.
func (h *Harness) fields(obj ir.Object) map[string]any {
	out := obj.ToAny()
	for k, v := range out {
		if s, ok := v.(string); ok {
			out[k] = h.aliases.display(s)
		}
	}
	return out
}

func addressesOf(recs []ir.Record) []ir.Address {
	out := make([]ir.Address, len(recs))
	for i, rec := range recs {
		out[i] = rec.Address
	}
	return out
}

const entryPrefix = "entry:"

var literalAddress = regexp.MustCompile(`^[0-9a-f]{64}$`)

// aliases maps scenario names to addresses and back. Addresses seen
// without a name get "$1", "$2", ... in order of first appearance.
type aliases struct {
	byName map[string]ir.Address
	byAddr map[ir.Address]string
	anon   int
}

func newAliases() *aliases {
	return &aliases{
		byName: make(map[string]ir.Address),
		byAddr: make(map[ir.Address]string),
	}
}

// bind names addr. The first name given to an address is the one shown.
func (a *aliases) bind(name string, addr ir.Address) {
	a.byName[name] = addr
	if _, ok := a.byAddr[addr]; !ok {
		a.byAddr[addr] = name
	}
}

func (a *aliases) resolve(ref string) (ir.Address, error) {
	if addr, ok := a.byName[ref]; ok {
		return addr, nil
	}
	if literalAddress.MatchString(ref) {
		return ir.Address(ref), nil
	}
	return "", fmt.Errorf("unknown alias %q", ref)
}

func (a *aliases) name(addr ir.Address) string {
	if n, ok := a.byAddr[addr]; ok {
		return n
	}
	a.anon++
	n := fmt.Sprintf("$%d", a.anon)
	a.byAddr[addr] = n
	a.byName[n] = addr
	return n
}

// names returns a []any so the result can go straight to the canonical
// encoder.
func (a *aliases) names(addrs []ir.Address) []any {
	out := make([]any, len(addrs))
	for i, addr := range addrs {
		out[i] = a.name(addr)
	}
	return out
}

// display returns the alias of s if s is a known address, s otherwise.
func (a *aliases) display(s string) string {
	if n, ok := a.byAddr[ir.Address(s)]; ok {
		return n
	}
	return s
}
