// Package schema validates entry fields against the CUE definitions of
// the entry kinds.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/blogchain/internal/ir"
)

//go:embed kinds.cue
var kindsCUE string

// Source returns the CUE source of the kind definitions.
func Source() string { return kindsCUE }

var definitions = map[ir.EntryKind]string{
	ir.KindPost:    "#Post",
	ir.KindComment: "#Comment",
}

// FieldError is one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every constraint an entry failed.
type Error struct {
	Kind   ir.EntryKind
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Field == "" {
			parts[i] = f.Message
		} else {
			parts[i] = f.Field + ": " + f.Message
		}
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

// Validator checks entries against the kind definitions. A CUE context is
// not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[ir.EntryKind]cue.Value
}

// New compiles the embedded kind definitions.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(kindsCUE, cue.Filename("kinds.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile kinds: %w", err)
	}

	defs := make(map[ir.EntryKind]cue.Value, len(definitions))
	for kind, name := range definitions {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("compile kinds: %s not defined", name)
		}
		defs[kind] = def
	}
	return &Validator{ctx: ctx, defs: defs}, nil
}

// Validate checks e. It returns nil or an *Error.
func (v *Validator) Validate(e ir.Entry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	def, ok := v.defs[e.Kind]
	if !ok {
		return &Error{Kind: e.Kind, Fields: []FieldError{{Field: "kind", Message: fmt.Sprintf("unknown entry kind %q", e.Kind)}}}
	}

	fields := e.Fields
	if fields == nil {
		fields = ir.Object{}
	}
	if p := fields.Unnormalized(); p != "" {
		return &Error{Kind: e.Kind, Fields: []FieldError{{Field: p, Message: "must be in Unicode NFC"}}}
	}
	data := v.ctx.Encode(fields.ToAny())
	if err := data.Err(); err != nil {
		return &Error{Kind: e.Kind, Fields: []FieldError{{Message: err.Error()}}}
	}

	err := def.Unify(data).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	return &Error{Kind: e.Kind, Fields: fieldErrors(err)}
}

func fieldErrors(err error) []FieldError {
	var out []FieldError
	seen := make(map[string]bool)
	for _, ce := range cueerrors.Errors(err) {
		path := ce.Path()
		field := ""
		if len(path) > 0 {
			field = path[len(path)-1]
		}
		format, args := ce.Msg()
		msg := fmt.Sprintf(format, args...)
		key := field + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, FieldError{Field: field, Message: msg})
	}
	if len(out) == 0 {
		out = append(out, FieldError{Message: err.Error()})
	}
	return out
}
