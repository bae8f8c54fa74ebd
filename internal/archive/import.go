package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// Import reads an archive from r into b. The archive must use b's hash
// algorithm. Objects b already holds are skipped. Actions are inserted
// only once their predecessor is stored, so an archive whose actions are
// out of causal order still imports.
func Import(ctx context.Context, b store.Backend, r io.Reader) (Stats, error) {
	var stats Stats

	zr, err := zstd.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("import: %w", err)
	}
	defer zr.Close()
	dec := decMode.NewDecoder(bufio.NewReaderSize(zr, 64*1024))

	header, err := readHeader(dec)
	if err != nil {
		return stats, fmt.Errorf("import: %w", err)
	}
	if header.HashAlgorithm != b.Hasher().Algorithm() {
		return stats, fmt.Errorf("import: archive uses %s, store uses %s: %w",
			header.HashAlgorithm, b.Hasher().Algorithm(), store.ErrAlgorithmMismatch)
	}

	var pending []frame
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return stats, ErrTruncated
			}
			return stats, fmt.Errorf("import: %w", err)
		}

		switch f.Type {
		case frameEntry:
			if err := importEntry(ctx, b, f, &stats); err != nil {
				return stats, err
			}
		case frameAction:
			if f.Action == nil {
				return stats, fmt.Errorf("import: action frame %s has no action", f.Address.Short())
			}
			pending = append(pending, f)
		case frameEnd:
			if err := importActions(ctx, b, pending, &stats); err != nil {
				return stats, err
			}
			if f.Entries != stats.Entries || f.Actions != stats.Actions {
				return stats, fmt.Errorf("%w: end frame counts %d entries, %d actions; read %d, %d",
					ErrTruncated, f.Entries, f.Actions, stats.Entries, stats.Actions)
			}
			return stats, nil
		default:
			return stats, fmt.Errorf("import: unknown frame type %q", f.Type)
		}
	}
}

func importEntry(ctx context.Context, b store.Backend, f frame, stats *Stats) error {
	fields, err := ir.ParseObject(f.Fields)
	if err != nil {
		return fmt.Errorf("import entry %s: %w", f.Address.Short(), err)
	}
	e := ir.Entry{Kind: f.EntryKind, Fields: fields}

	want, err := b.Hasher().EntryAddress(e)
	if err != nil {
		return fmt.Errorf("import entry %s: %w", f.Address.Short(), err)
	}
	if want != f.Address {
		return fmt.Errorf("%w: entry %s hashes to %s", ErrTampered, f.Address.Short(), want.Short())
	}

	existing, err := b.Get(ctx, f.Address)
	if err != nil {
		return fmt.Errorf("import entry %s: %w", f.Address.Short(), err)
	}
	if existing != nil {
		stats.Skipped++
	}
	if _, err := b.PutEntry(ctx, e); err != nil {
		return fmt.Errorf("import entry %s: %w", f.Address.Short(), err)
	}
	stats.Entries++
	return nil
}

// importActions inserts actions in passes, each pass storing every action
// whose predecessor is already present.
func importActions(ctx context.Context, b store.Backend, pending []frame, stats *Stats) error {
	for _, f := range pending {
		want, err := b.Hasher().ActionAddress(*f.Action)
		if err != nil {
			return fmt.Errorf("import action %s: %w", f.Address.Short(), err)
		}
		if want != f.Address {
			return fmt.Errorf("%w: action %s hashes to %s", ErrTampered, f.Address.Short(), want.Short())
		}
	}

	for len(pending) > 0 {
		var deferred []frame
		for _, f := range pending {
			if f.Action.Predecessor != "" {
				pred, err := b.Get(ctx, f.Action.Predecessor)
				if err != nil {
					return fmt.Errorf("import action %s: %w", f.Address.Short(), err)
				}
				if pred == nil {
					deferred = append(deferred, f)
					continue
				}
			}

			existing, err := b.Get(ctx, f.Address)
			if err != nil {
				return fmt.Errorf("import action %s: %w", f.Address.Short(), err)
			}
			if existing != nil {
				stats.Skipped++
			}
			if _, err := b.PutAction(ctx, *f.Action); err != nil {
				return fmt.Errorf("import action %s: %w", f.Address.Short(), err)
			}
			stats.Actions++
		}
		if len(deferred) == len(pending) {
			return fmt.Errorf("import: %d actions reference predecessors missing from store and archive: %w",
				len(deferred), store.ErrMissingReference)
		}
		pending = deferred
	}
	return nil
}
