package store

import (
	"context"
	"fmt"

	"github.com/roach88/blogchain/internal/ir"
)

// Problem is one integrity violation found by Verify.
type Problem struct {
	Address ir.Address `json:"address"`
	Kind    string     `json:"kind"`
	Message string     `json:"message"`
}

// Problem kinds.
const (
	ProblemAddress   = "address_mismatch"
	ProblemShape     = "invalid_action"
	ProblemReference = "dangling_reference"
	ProblemKind      = "kind_mismatch"
)

// VerifyReport summarizes a full pass over a backend.
type VerifyReport struct {
	Entries  int       `json:"entries"`
	Actions  int       `json:"actions"`
	Problems []Problem `json:"problems"`
}

// OK reports whether no problems were found.
func (r VerifyReport) OK() bool { return len(r.Problems) == 0 }

// Verify re-reads every stored object, recomputes its address under the
// store's hasher, and checks that every action's references resolve to
// objects of the right shape. It never modifies the store.
func Verify(ctx context.Context, b Backend) (VerifyReport, error) {
	report := VerifyReport{Problems: []Problem{}}
	h := b.Hasher()

	err := b.ScanEntries(ctx, func(addr ir.Address, e ir.Entry) error {
		report.Entries++
		got, err := h.EntryAddress(e)
		if err != nil {
			report.Problems = append(report.Problems, Problem{addr, ProblemAddress, err.Error()})
			return nil
		}
		if got != addr {
			report.Problems = append(report.Problems, Problem{addr, ProblemAddress, "recomputed " + got.String()})
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("verify entries: %w", err)
	}

	err = b.ScanActions(ctx, func(addr ir.Address, a ir.Action) error {
		report.Actions++
		got, err := h.ActionAddress(a)
		if err != nil {
			report.Problems = append(report.Problems, Problem{addr, ProblemAddress, err.Error()})
		} else if got != addr {
			report.Problems = append(report.Problems, Problem{addr, ProblemAddress, "recomputed " + got.String()})
		}
		for _, verr := range a.Validate() {
			report.Problems = append(report.Problems, Problem{addr, ProblemShape, verr.Error()})
		}
		return verifyReferences(ctx, b, addr, a, &report)
	})
	if err != nil {
		return report, fmt.Errorf("verify actions: %w", err)
	}

	return report, nil
}

func verifyReferences(ctx context.Context, b Backend, addr ir.Address, a ir.Action, report *VerifyReport) error {
	if a.EntryAddress != "" {
		rec, err := b.Get(ctx, a.EntryAddress)
		if err != nil {
			return err
		}
		switch {
		case rec == nil || rec.Entry == nil || rec.IsAction():
			report.Problems = append(report.Problems, Problem{addr, ProblemReference, "entry " + a.EntryAddress.String() + " not stored"})
		case rec.Entry.Kind != a.EntryKind:
			report.Problems = append(report.Problems, Problem{addr, ProblemKind,
				fmt.Sprintf("action kind %s carries %s entry", a.EntryKind, rec.Entry.Kind)})
		}
	}
	if a.Predecessor != "" {
		rec, err := b.Get(ctx, a.Predecessor)
		if err != nil {
			return err
		}
		switch {
		case rec == nil || !rec.IsAction():
			report.Problems = append(report.Problems, Problem{addr, ProblemReference, "predecessor " + a.Predecessor.String() + " not stored"})
		case rec.Action.EntryKind != a.EntryKind:
			report.Problems = append(report.Problems, Problem{addr, ProblemKind,
				fmt.Sprintf("action kind %s follows %s action", a.EntryKind, rec.Action.EntryKind)})
		}
	}
	return nil
}
