package mavlink

import "sort"

// Message describes one MAVLink message: its declared fields, its v2-only
// trailing field_extensions, and the data derived once at load time and
// cached for the lifetime of the schema.
type Message struct {
	Name            string
	ID              uint32
	Description     string
	Fields          []Field
	FieldExtensions []Field

	// Derived, computed once by finalize() and never mutated afterwards.
	FieldsReordered     []Field
	AllFields           []Field
	AllFieldsReordered  []Field
	ExpectedPayloadSize int
	CRCExtra            byte
}

// finalize computes every cached derived field. Called exactly once, right
// after a Message's Fields/FieldExtensions are fully populated by the
// loader.
func (m *Message) finalize() {
	m.FieldsReordered = reorderBySize(m.Fields)

	m.AllFields = make([]Field, 0, len(m.Fields)+len(m.FieldExtensions))
	m.AllFields = append(m.AllFields, m.Fields...)
	m.AllFields = append(m.AllFields, m.FieldExtensions...)

	m.AllFieldsReordered = make([]Field, 0, len(m.AllFields))
	m.AllFieldsReordered = append(m.AllFieldsReordered, m.FieldsReordered...)
	m.AllFieldsReordered = append(m.AllFieldsReordered, m.FieldExtensions...)

	total := 0
	for _, f := range m.Fields {
		total += f.Size
	}
	m.ExpectedPayloadSize = total

	m.CRCExtra = computeCRCExtra(m)
}

// reorderBySize returns fields sorted by descending primitive element byte
// size, stable for equal sizes so declaration order is preserved within a
// size class. Extensions are never passed to this function: they are
// appended untouched after reordering.
func reorderBySize(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ElemSize > out[j].ElemSize
	})
	return out
}

// computeCRCExtra derives the per-message CRC seed byte from the message's
// schema: its name and the type/name/array-length of every base field, in
// reordered order. Extensions never participate.
func computeCRCExtra(m *Message) byte {
	crc := crcInit
	crc = crcAccumulateBytes(crc, []byte(m.Name))
	crc = crcAccumulate(crc, ' ')

	for _, f := range m.FieldsReordered {
		crc = crcAccumulateBytes(crc, []byte(f.TypeString))
		crc = crcAccumulate(crc, ' ')
		crc = crcAccumulateBytes(crc, []byte(f.Name))
		crc = crcAccumulate(crc, ' ')
		if f.Count > 1 {
			crc = crcAccumulate(crc, byte(f.Count))
		}
	}

	return byte(crc&0xFF) ^ byte((crc>>8)&0xFF)
}

// FieldByName returns the field with the given name, searching base fields
// then extensions.
func (m *Message) FieldByName(name string) (Field, bool) {
	for _, f := range m.AllFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
