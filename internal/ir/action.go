package ir

import "fmt"

// EntryKind names an entry type.
type EntryKind string

const (
	KindPost    EntryKind = "post"
	KindComment EntryKind = "comment"
)

// Valid reports whether k is a known kind.
func (k EntryKind) Valid() bool {
	return k == KindPost || k == KindComment
}

// Entry is an immutable payload. Identical entries share one address.
type Entry struct {
	Kind   EntryKind `json:"kind"`
	Fields Object    `json:"fields"`
}

func (e Entry) canonical() Object {
	fields := e.Fields
	if fields == nil {
		fields = Object{}
	}
	return Object{
		"kind":   String(e.Kind),
		"fields": fields,
	}
}

// ActionType is the kind of event an action records.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Action is an immutable event over an entry. Update and Delete point at
// the action they supersede through Predecessor, which makes the address
// of an action depend on its whole history.
type Action struct {
	Type         ActionType `json:"type"`
	Author       string     `json:"author"`
	Seq          int64      `json:"seq"`
	EntryKind    EntryKind  `json:"entry_kind"`
	EntryAddress Address    `json:"entry_address,omitempty"`
	Predecessor  Address    `json:"predecessor,omitempty"`
}

// HasEntry reports whether the action carries an entry.
func (a Action) HasEntry() bool {
	return a.Type == ActionCreate || a.Type == ActionUpdate
}

func (a Action) canonical() Object {
	obj := Object{
		"type":       String(a.Type),
		"author":     String(a.Author),
		"seq":        Int(a.Seq),
		"entry_kind": String(a.EntryKind),
	}
	if a.EntryAddress != "" {
		obj["entry_address"] = String(a.EntryAddress)
	}
	if a.Predecessor != "" {
		obj["predecessor"] = String(a.Predecessor)
	}
	return obj
}

// ValidationError reports a malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the shape rules of each action type. It returns every
// violation, not just the first.
func (a Action) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if !a.EntryKind.Valid() {
		add("entry_kind", fmt.Sprintf("unknown entry kind %q", a.EntryKind))
	}
	if a.Author == "" {
		add("author", "is required")
	}
	if a.Seq < 1 {
		add("seq", "must be positive")
	}

	switch a.Type {
	case ActionCreate:
		if a.EntryAddress == "" {
			add("entry_address", "is required for create")
		}
		if a.Predecessor != "" {
			add("predecessor", "must be empty for create")
		}
	case ActionUpdate:
		if a.EntryAddress == "" {
			add("entry_address", "is required for update")
		}
		if a.Predecessor == "" {
			add("predecessor", "is required for update")
		}
	case ActionDelete:
		if a.EntryAddress != "" {
			add("entry_address", "must be empty for delete")
		}
		if a.Predecessor == "" {
			add("predecessor", "is required for delete")
		}
	default:
		add("type", fmt.Sprintf("unknown action type %q", a.Type))
	}

	for _, addr := range []struct {
		field string
		value Address
	}{{"entry_address", a.EntryAddress}, {"predecessor", a.Predecessor}} {
		if addr.value == "" {
			continue
		}
		if _, err := ParseAddress(string(addr.value)); err != nil {
			add(addr.field, err.Error())
		}
	}
	return errs
}

// Validate checks the entry kind and that every field string is in NFC.
// Field rules live in the schema package.
func (e Entry) Validate() []ValidationError {
	if !e.Kind.Valid() {
		return []ValidationError{{Field: "kind", Message: fmt.Sprintf("unknown entry kind %q", e.Kind)}}
	}
	if p := e.Fields.Unnormalized(); p != "" {
		return []ValidationError{{Field: p, Message: "must be in Unicode NFC"}}
	}
	return nil
}
