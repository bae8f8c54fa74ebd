package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/blogchain/internal/chain"
	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// recordView is one record in command output.
type recordView struct {
	ir.Record
}

func (v recordView) String() string {
	var b strings.Builder
	writeRecord(&b, v.Record, "")
	return b.String()
}

func writeRecord(b *strings.Builder, rec ir.Record, indent string) {
	fmt.Fprintf(b, "%saddress: %s\n", indent, rec.Address)
	if a := rec.Action; a != nil {
		fmt.Fprintf(b, "%s%s %s  seq=%d  author=%s\n", indent, a.Type, a.EntryKind, a.Seq, a.Author)
		if a.Predecessor != "" {
			fmt.Fprintf(b, "%spredecessor: %s\n", indent, a.Predecessor)
		}
		if a.EntryAddress != "" {
			fmt.Fprintf(b, "%sentry: %s\n", indent, a.EntryAddress)
		}
	}
	if e := rec.Entry; e != nil {
		if rec.Action == nil {
			fmt.Fprintf(b, "%sentry of kind %s\n", indent, e.Kind)
		}
		for _, k := range e.Fields.SortedKeys() {
			fmt.Fprintf(b, "%s  %s: %v\n", indent, k, e.Fields[k])
		}
	}
}

// recordsView is an ordered list of records.
type recordsView []ir.Record

func (v recordsView) String() string {
	if len(v) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for i, rec := range v {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d]\n", i+1)
		writeRecord(&b, rec, "  ")
	}
	return b.String()
}

// addressView reports a single new address.
type addressView struct {
	Address ir.Address `json:"address"`
}

func (v addressView) String() string {
	return string(v.Address) + "\n"
}

// resolutionView renders a multi-hop resolve.
type resolutionView struct {
	chain.Resolution
}

func (v resolutionView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", v.State)
	if v.Head != nil {
		fmt.Fprintf(&b, "head: %s\n", v.Head.Address)
	}
	fmt.Fprintf(&b, "hops: %d\n", v.Hops)
	for i, a := range v.Path {
		fmt.Fprintf(&b, "  %d. %s\n", i, a)
	}
	writeAddresses(&b, "fork candidates", v.Forks)
	writeAddresses(&b, "deleted by", v.DeletedBy)
	return b.String()
}

// stepView renders one resolver hop.
type stepView struct {
	chain.Step
}

func (v stepView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step: %s\n", v.Kind)
	if v.Next != "" {
		fmt.Fprintf(&b, "next: %s\n", v.Next)
	}
	writeAddresses(&b, "candidates", v.Candidates)
	writeAddresses(&b, "deleted by", v.DeletedBy)
	return b.String()
}

// detailsView renders one-hop details.
type detailsView struct {
	Kind    string      `json:"kind"`
	Record  ir.Record   `json:"record"`
	Updates []ir.Record `json:"updates,omitempty"`
	Deletes []ir.Record `json:"deletes,omitempty"`
	Actions []ir.Record `json:"actions,omitempty"`
}

func newDetailsView(d ir.Details) detailsView {
	switch d := d.(type) {
	case ir.RecordDetails:
		return detailsView{Kind: "action", Record: d.Record, Updates: d.Updates, Deletes: d.Deletes}
	case ir.EntryDetails:
		return detailsView{Kind: "entry", Record: d.Record, Actions: d.Actions}
	default:
		return detailsView{}
	}
}

func (v detailsView) String() string {
	var b strings.Builder
	writeRecord(&b, v.Record, "")
	if v.Kind == "entry" {
		writeAddresses(&b, "carried by", addressesOf(v.Actions))
		return b.String()
	}
	writeAddresses(&b, "updates", addressesOf(v.Updates))
	writeAddresses(&b, "deletes", addressesOf(v.Deletes))
	return b.String()
}

// verifyView renders a store verification report.
type verifyView struct {
	store.VerifyReport
}

func (v verifyView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verified %d entries, %d actions\n", v.Entries, v.Actions)
	for _, p := range v.Problems {
		fmt.Fprintf(&b, "✗ %s %s: %s\n", p.Kind, p.Address, p.Message)
	}
	if v.OK() {
		b.WriteString("✓ All addresses verified\n")
	}
	return b.String()
}

func writeAddresses(b *strings.Builder, label string, addrs []ir.Address) {
	if len(addrs) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, a := range addrs {
		fmt.Fprintf(b, "  %s\n", a)
	}
}

func addressesOf(recs []ir.Record) []ir.Address {
	out := make([]ir.Address, len(recs))
	for i, rec := range recs {
		out[i] = rec.Address
	}
	return out
}
