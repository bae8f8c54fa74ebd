package ir

// Record is what a store returns for one address. For an action address
// Action is set, and Entry is set unless the action is a delete. For an
// entry address only Entry is set.
type Record struct {
	Address Address `json:"address"`
	Action  *Action `json:"action,omitempty"`
	Entry   *Entry  `json:"entry,omitempty"`
}

// IsAction reports whether the record was fetched by an action address.
func (r Record) IsAction() bool {
	return r.Action != nil
}

// Details is a record plus its one-hop forward references. It is one of
// RecordDetails or EntryDetails.
type Details interface {
	details()
	Subject() Record
}

// RecordDetails is returned for an action address. Updates and Deletes
// hold the actions whose Predecessor is this address, ordered by seq then
// address.
type RecordDetails struct {
	Record  Record   `json:"record"`
	Updates []Record `json:"updates"`
	Deletes []Record `json:"deletes"`
}

func (RecordDetails) details() {}

// Subject returns the record the details are about.
func (d RecordDetails) Subject() Record { return d.Record }

// EntryDetails is returned for an entry address. Actions lists the
// creates and updates that carry the entry.
type EntryDetails struct {
	Record  Record   `json:"record"`
	Actions []Record `json:"actions"`
}

func (EntryDetails) details() {}

// Subject returns the record the details are about.
func (d EntryDetails) Subject() Record { return d.Record }
