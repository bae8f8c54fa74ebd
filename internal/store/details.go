package store

import (
	"cmp"
	"slices"

	"github.com/roach88/blogchain/internal/ir"
)

// SortRecords orders action records by seq, then address.
func SortRecords(recs []ir.Record) {
	slices.SortFunc(recs, func(a, b ir.Record) int {
		if c := cmp.Compare(a.Action.Seq, b.Action.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.Address, b.Address)
	})
}

// NewRecordDetails splits the actions referencing rec into updates and
// deletes. Both slices are non-nil and sorted.
func NewRecordDetails(rec ir.Record, refs []ir.Record) ir.RecordDetails {
	d := ir.RecordDetails{
		Record:  rec,
		Updates: []ir.Record{},
		Deletes: []ir.Record{},
	}
	for _, ref := range refs {
		switch ref.Action.Type {
		case ir.ActionUpdate:
			d.Updates = append(d.Updates, ref)
		case ir.ActionDelete:
			d.Deletes = append(d.Deletes, ref)
		}
	}
	SortRecords(d.Updates)
	SortRecords(d.Deletes)
	return d
}

// NewEntryDetails builds the details of an entry from the actions that
// carry it.
func NewEntryDetails(rec ir.Record, actions []ir.Record) ir.EntryDetails {
	if actions == nil {
		actions = []ir.Record{}
	}
	SortRecords(actions)
	return ir.EntryDetails{Record: rec, Actions: actions}
}
