package hl7v2

import (
	"fmt"
	"strings"

	"github.com/mpi/mpi/internal/platform/pii"
)

// ErrNoPID reports a message without a PID segment; there is nothing to
// link.
var ErrNoPID = fmt.Errorf("hl7v2: message has no PID segment")

// ExtractRecord maps the message's first PID segment onto a demographic
// record. Any message type carrying a PID works; values are taken verbatim
// and left to record normalization.
func ExtractRecord(msg *Message) (*pii.Record, error) {
	pid, ok := msg.Segment("PID")
	if !ok {
		return nil, ErrNoPID
	}

	rec := &pii.Record{}

	// PID-3: patient identifier list (CX: value^^^assigning authority^type).
	for _, cx := range pid.Field(3).Repeats() {
		id := pii.Identifier{
			Value:     component(cx, 1),
			Authority: component(cx, 4),
			Type:      strings.ToUpper(component(cx, 5)),
		}
		if id.Value != "" {
			rec.Identifiers = append(rec.Identifiers, id)
		}
	}

	// PID-5: patient name (XPN: family^given^middle^suffix).
	for _, xpn := range pid.Field(5).Repeats() {
		name := pii.Name{
			Family: component(xpn, 1),
			Suffix: component(xpn, 4),
		}
		if g := component(xpn, 2); g != "" {
			name.Given = append(name.Given, g)
		}
		if m := component(xpn, 3); m != "" {
			name.Given = append(name.Given, m)
		}
		if name.Family != "" || len(name.Given) > 0 {
			rec.Name = append(rec.Name, name)
		}
	}

	// PID-7: date of birth (DTM, at least YYYYMMDD).
	rec.BirthDate = dtmToDate(pid.Field(7).Value())

	// PID-8: administrative sex.
	rec.Sex = pid.Field(8).Value()

	// PID-10: race (CWE: code^text). Prefer the text.
	if race := pid.Field(10); race.Component(2) != "" {
		rec.Race = race.Component(2)
	} else {
		rec.Race = race.Value()
	}

	// PID-11: patient address (XAD: street^other^city^state^zip^^^^county).
	for _, xad := range pid.Field(11).Repeats() {
		addr := pii.Address{
			City:       component(xad, 3),
			State:      component(xad, 4),
			PostalCode: component(xad, 5),
			County:     component(xad, 9),
		}
		if l := component(xad, 1); l != "" {
			addr.Line = append(addr.Line, l)
		}
		if l := component(xad, 2); l != "" {
			addr.Line = append(addr.Line, l)
		}
		if len(addr.Line) > 0 || addr.City != "" || addr.State != "" || addr.PostalCode != "" {
			rec.Address = append(rec.Address, addr)
		}
	}

	// PID-13 and PID-14: home and business telecom (XTN). XTN-4 carries an
	// email address, XTN-1 the legacy phone number; senders on the
	// structured form leave XTN-1 empty and fill area code and local
	// number in XTN-6 and XTN-7.
	for _, field := range []Field{pid.Field(13), pid.Field(14)} {
		for _, xtn := range field.Repeats() {
			if email := component(xtn, 4); email != "" {
				rec.Telecom = append(rec.Telecom, pii.Telecom{System: "email", Value: email})
				continue
			}
			number := component(xtn, 1)
			if number == "" {
				number = component(xtn, 6) + component(xtn, 7)
			}
			if number != "" {
				rec.Telecom = append(rec.Telecom, pii.Telecom{System: "phone", Value: number})
			}
		}
	}

	// PID-18: patient account number, a table 0203 AN identifier.
	if acct := pid.Field(18); acct.Value() != "" {
		rec.Identifiers = append(rec.Identifiers, pii.Identifier{
			Type:      "AN",
			Authority: acct.Component(4),
			Value:     acct.Value(),
		})
	}

	return rec, nil
}

// component returns the 1-based component of one repetition.
func component(rep []string, c int) string {
	if c < 1 || c > len(rep) {
		return ""
	}
	return strings.TrimSpace(rep[c-1])
}

// dtmToDate converts an HL7 DTM timestamp to YYYY-MM-DD. Anything shorter
// than a full date is returned as-is for normalization to reject.
func dtmToDate(dtm string) string {
	if len(dtm) < 8 {
		return dtm
	}
	digits := dtm[:8]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return dtm
		}
	}
	return digits[:4] + "-" + digits[4:6] + "-" + digits[6:8]
}
