// Package archive exports a whole store to a portable file and imports it
// back.
//
// An archive is a zstd stream of CBOR frames: one header, every entry, every
// action in seq order, and an end frame carrying the counts. CBOR uses Core
// Deterministic Encoding, so exporting the same store twice gives identical
// bytes. Import recomputes every address and refuses objects whose content
// does not hash to the address they were exported under.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// Magic identifies an archive header.
const Magic = "blogchain-archive"

// ErrTampered is returned when an object's content does not hash to the
// address it was archived under.
var ErrTampered = errors.New("archive: address mismatch")

// ErrTruncated is returned when an archive ends before its end frame, or
// the end frame's counts disagree with the frames read.
var ErrTruncated = errors.New("archive: truncated")

// Header is the first frame of an archive.
type Header struct {
	Magic         string           `cbor:"1,keyasint"`
	FormatVersion string           `cbor:"2,keyasint"`
	ToolVersion   string           `cbor:"3,keyasint"`
	HashAlgorithm ir.HashAlgorithm `cbor:"4,keyasint"`
	Agent         string           `cbor:"5,keyasint"`
}

// Frame types.
const (
	frameEntry  = "entry"
	frameAction = "action"
	frameEnd    = "end"
)

type frame struct {
	Type    string     `cbor:"1,keyasint"`
	Address ir.Address `cbor:"2,keyasint,omitempty"`

	// Entries: kind plus canonical JSON of the fields. Fields stay JSON
	// because the value model has no CBOR mapping of its own.
	EntryKind ir.EntryKind `cbor:"3,keyasint,omitempty"`
	Fields    []byte       `cbor:"4,keyasint,omitempty"`

	Action *ir.Action `cbor:"5,keyasint,omitempty"`

	// End frame.
	Entries int `cbor:"6,keyasint,omitempty"`
	Actions int `cbor:"7,keyasint,omitempty"`
}

// Stats counts the objects moved.
type Stats struct {
	Entries int `json:"entries"`
	Actions int `json:"actions"`

	// Skipped counts imported objects the store already held.
	Skipped int `json:"skipped,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}
}

// Export writes every object in b to w.
func Export(ctx context.Context, b store.Backend, w io.Writer) (Stats, error) {
	var stats Stats

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return stats, fmt.Errorf("export: %w", err)
	}
	bw := bufio.NewWriterSize(zw, 64*1024)
	enc := encMode.NewEncoder(bw)

	header := Header{
		Magic:         Magic,
		FormatVersion: ir.FormatVersion,
		ToolVersion:   ir.ToolVersion,
		HashAlgorithm: b.Hasher().Algorithm(),
		Agent:         b.Agent(),
	}
	if err := enc.Encode(header); err != nil {
		zw.Close()
		return stats, fmt.Errorf("export header: %w", err)
	}

	err = b.ScanEntries(ctx, func(addr ir.Address, e ir.Entry) error {
		fields, err := ir.MarshalCanonical(e.Fields)
		if err != nil {
			return fmt.Errorf("entry %s: %w", addr.Short(), err)
		}
		stats.Entries++
		return enc.Encode(frame{Type: frameEntry, Address: addr, EntryKind: e.Kind, Fields: fields})
	})
	if err != nil {
		zw.Close()
		return stats, fmt.Errorf("export entries: %w", err)
	}

	err = b.ScanActions(ctx, func(addr ir.Address, a ir.Action) error {
		stats.Actions++
		return enc.Encode(frame{Type: frameAction, Address: addr, Action: &a})
	})
	if err != nil {
		zw.Close()
		return stats, fmt.Errorf("export actions: %w", err)
	}

	if err := enc.Encode(frame{Type: frameEnd, Entries: stats.Entries, Actions: stats.Actions}); err != nil {
		zw.Close()
		return stats, fmt.Errorf("export end: %w", err)
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return stats, fmt.Errorf("export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("export: %w", err)
	}
	return stats, nil
}

// ReadHeader reads only the header of an archive.
func ReadHeader(r io.Reader) (Header, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	defer zr.Close()
	return readHeader(decMode.NewDecoder(zr))
}

func readHeader(dec *cbor.Decoder) (Header, error) {
	var h Header
	if err := dec.Decode(&h); err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("read header: not a blogchain archive")
	}
	if h.FormatVersion != ir.FormatVersion {
		return h, fmt.Errorf("read header: unsupported format version %q", h.FormatVersion)
	}
	return h, nil
}
