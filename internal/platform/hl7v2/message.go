// Package hl7v2 parses HL7 v2.x messages far enough to feed record linkage:
// MSH routing fields, PID demographics, acknowledgments, and MLLP framing.
// It is an intake adapter, not a general HL7 engine; escape sequences are
// passed through verbatim and subcomponents are not split.
package hl7v2

import (
	"fmt"
	"strings"
)

// separators holds the delimiter set declared by MSH-1 and MSH-2.
type separators struct {
	field      byte
	component  byte
	repetition byte
}

var defaultSeparators = separators{field: '|', component: '^', repetition: '~'}

// Field is one field of a segment: repetitions of component lists.
type Field struct {
	repeats [][]string
}

// Value returns the first component of the first repetition.
func (f Field) Value() string {
	if len(f.repeats) == 0 || len(f.repeats[0]) == 0 {
		return ""
	}
	return f.repeats[0][0]
}

// Component returns the 1-based component of the first repetition.
func (f Field) Component(c int) string {
	if len(f.repeats) == 0 || c < 1 || c > len(f.repeats[0]) {
		return ""
	}
	return f.repeats[0][c-1]
}

// Repeats returns every repetition as its component list.
func (f Field) Repeats() [][]string {
	return f.repeats
}

// Segment is one named segment line.
type Segment struct {
	Name   string
	fields []Field
}

// Field returns the field at the 1-based HL7 position. For MSH, position 1
// is the field separator itself, as the standard numbers it.
func (s *Segment) Field(n int) Field {
	if n < 1 || n > len(s.fields) {
		return Field{}
	}
	return s.fields[n-1]
}

// Message is a parsed HL7 v2.x message.
type Message struct {
	Type              string // MSH-9.1, e.g. "ADT"
	TriggerEvent      string // MSH-9.2, e.g. "A01"
	ControlID         string // MSH-10
	Version           string // MSH-12
	SendingApp        string // MSH-3
	SendingFacility   string // MSH-4
	ReceivingApp      string // MSH-5
	ReceivingFacility string // MSH-6

	segments []Segment
}

// Segment returns the first segment with the given name.
func (m *Message) Segment(name string) (*Segment, bool) {
	for i := range m.segments {
		if m.segments[i].Name == name {
			return &m.segments[i], true
		}
	}
	return nil, false
}

// Segments returns every segment with the given name, in message order.
func (m *Message) Segments(name string) []*Segment {
	var out []*Segment
	for i := range m.segments {
		if m.segments[i].Name == name {
			out = append(out, &m.segments[i])
		}
	}
	return out
}

// Parse parses raw HL7 v2 bytes. Segments may be separated by \r, \n, or
// \r\n; the first segment must be MSH and declares the delimiters.
func Parse(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("hl7v2: message is empty")
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("hl7v2: no segments found")
	}
	if !strings.HasPrefix(lines[0], "MSH") {
		return nil, fmt.Errorf("hl7v2: first segment must be MSH, got %q", lines[0][:min(3, len(lines[0]))])
	}

	seps := defaultSeparators
	if len(lines[0]) > 3 {
		seps.field = lines[0][3]
	}
	if len(lines[0]) > 5 {
		seps.component = lines[0][4]
		seps.repetition = lines[0][5]
	}

	msg := &Message{segments: make([]Segment, 0, len(lines))}
	for _, line := range lines {
		seg, err := parseSegment(line, seps)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: %w", err)
		}
		msg.segments = append(msg.segments, seg)
	}

	msg.extractHeader()
	return msg, nil
}

func parseSegment(line string, seps separators) (Segment, error) {
	if len(line) < 3 {
		return Segment{}, fmt.Errorf("segment too short: %q", line)
	}
	seg := Segment{Name: line[:3]}

	var rawFields []string
	if seg.Name == "MSH" {
		// MSH-1 is the field separator character itself; MSH-2 is the
		// encoding characters, which must not be split on themselves.
		if len(line) < 4 {
			return seg, nil
		}
		rest := strings.Split(line[4:], string(seps.field))
		seg.fields = append(seg.fields,
			Field{repeats: [][]string{{string(seps.field)}}},
			Field{repeats: [][]string{{rest[0]}}},
		)
		rawFields = rest[1:]
	} else {
		if len(line) > 3 && line[3] == seps.field {
			rawFields = strings.Split(line[4:], string(seps.field))
		}
	}

	for _, raw := range rawFields {
		seg.fields = append(seg.fields, parseField(raw, seps))
	}
	return seg, nil
}

func parseField(raw string, seps separators) Field {
	reps := strings.Split(raw, string(seps.repetition))
	f := Field{repeats: make([][]string, 0, len(reps))}
	for _, rep := range reps {
		f.repeats = append(f.repeats, strings.Split(rep, string(seps.component)))
	}
	return f
}

func (m *Message) extractHeader() {
	msh, ok := m.Segment("MSH")
	if !ok {
		return
	}
	m.SendingApp = msh.Field(3).Value()
	m.SendingFacility = msh.Field(4).Value()
	m.ReceivingApp = msh.Field(5).Value()
	m.ReceivingFacility = msh.Field(6).Value()
	m.Type = msh.Field(9).Value()
	m.TriggerEvent = msh.Field(9).Component(2)
	m.ControlID = msh.Field(10).Value()
	m.Version = msh.Field(12).Value()
}
