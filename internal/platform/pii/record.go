// Package pii holds the normalized patient-record model shared by the
// blocking and linkage layers: the record itself, canonicalization of its
// fields, iteration over comparable feature values, skip-value cleaning,
// and extraction of blocking-key values.
package pii

// Name is one name entry on a record. The first entry is the name used for
// FIRST_NAME / LAST_NAME feature purposes.
type Name struct {
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Suffix string   `json:"suffix,omitempty"`
}

// Address is one postal address entry.
type Address struct {
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	County     string   `json:"county,omitempty"`
}

// Telecom is one contact point; System is "phone", "email", or free-form.
type Telecom struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Identifier is a (type, authority, value) triple; Type comes from the
// HL7 v2 0203 table (MR, SS, DL, ...).
type Identifier struct {
	Type      string `json:"type,omitempty"`
	Authority string `json:"authority,omitempty"`
	Value     string `json:"value,omitempty"`
}

// Record is the normalized view of an incoming patient payload. It is the
// shape persisted verbatim on the patient row and the input to blocking and
// scoring.
type Record struct {
	ExternalID  string       `json:"external_id,omitempty"`
	BirthDate   string       `json:"birth_date,omitempty"`
	Sex         string       `json:"sex,omitempty"`
	Race        string       `json:"race,omitempty"`
	Name        []Name       `json:"name,omitempty"`
	Address     []Address    `json:"address,omitempty"`
	Telecom     []Telecom    `json:"telecom,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
}

// Clone returns a deep copy; cleaning mutates the copy so the original can
// be persisted untouched.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Name != nil {
		out.Name = make([]Name, len(r.Name))
		for i, n := range r.Name {
			out.Name[i] = n
			out.Name[i].Given = append([]string(nil), n.Given...)
		}
	}
	if r.Address != nil {
		out.Address = make([]Address, len(r.Address))
		for i, a := range r.Address {
			out.Address[i] = a
			out.Address[i].Line = append([]string(nil), a.Line...)
		}
	}
	if r.Telecom != nil {
		out.Telecom = append([]Telecom{}, r.Telecom...)
	}
	if r.Identifiers != nil {
		out.Identifiers = append([]Identifier{}, r.Identifiers...)
	}
	return &out
}

// IsEmpty reports whether no feature yields a single value, i.e. nothing is
// left for any blocking key or evaluator to use.
func (r *Record) IsEmpty() bool {
	for _, f := range Features() {
		if len(Values(r, f)) > 0 {
			return false
		}
	}
	return true
}
