package mavlink

import (
	"encoding/binary"
	"math"
)

const (
	MarkerV1 byte = 0xFE
	MarkerV2 byte = 0xFD

	headerSizeV1 = 5 // payload_size, seq, sysid, compid, msgid
	headerSizeV2 = 9 // payload_size, incompat, compat, seq, sysid, compid, msgid(3)

	signatureSize = 13

	incompatFlagSigned = 0x01
)

// Version selects the wire framing used to encode an outgoing message.
type Version int

const (
	V1 Version = iota
	V2
)

// Frame is a fully decoded MAVLink frame header, prior to payload decoding.
type Frame struct {
	Version     Version
	PayloadSize uint8
	Incompat    uint8
	Compat      uint8
	Seq         uint8
	SysID       uint8
	CompID      uint8
	MsgID       uint32
	Payload     []byte
	CRC         uint16
}

// headerSize returns the header length in bytes (marker excluded) for the
// given version.
func headerSize(v Version) int {
	if v == V1 {
		return headerSizeV1
	}
	return headerSizeV2
}

// EncodeV1 builds a complete v1 wire frame for message m, seq and sysid/
// compid, from a name→Value content map.
func EncodeV1(schema *Schema, m *Message, seq, sysID, compID uint8, content map[string]Value) ([]byte, error) {
	payload, err := encodePayload(schema, m, content, false)
	if err != nil {
		return nil, err
	}

	header := []byte{uint8(len(payload)), seq, sysID, compID, uint8(m.ID)}
	crc := crcInit
	crc = crcAccumulateBytes(crc, header)
	crc = crcAccumulateBytes(crc, payload)
	crc = crcAccumulate(crc, m.CRCExtra)

	out := make([]byte, 0, 1+len(header)+len(payload)+2)
	out = append(out, MarkerV1)
	out = append(out, header...)
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint16(out, crc)
	return out, nil
}

// EncodeV2 builds a complete v2 wire frame for message m, with trailing
// all-zero bytes of the serialised payload trimmed (minimum length 1).
func EncodeV2(schema *Schema, m *Message, seq, sysID, compID uint8, content map[string]Value) ([]byte, error) {
	payload, err := encodePayload(schema, m, content, true)
	if err != nil {
		return nil, err
	}
	payload = trimTrailingZeros(payload)

	idBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(idBytes, m.ID)

	header := make([]byte, 0, headerSizeV2)
	header = append(header, uint8(len(payload)), 0, 0, seq, sysID, compID)
	header = append(header, idBytes[0], idBytes[1], idBytes[2])

	crc := crcInit
	crc = crcAccumulateBytes(crc, header)
	crc = crcAccumulateBytes(crc, payload)
	crc = crcAccumulate(crc, m.CRCExtra)

	out := make([]byte, 0, 1+len(header)+len(payload)+2)
	out = append(out, MarkerV2)
	out = append(out, header...)
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint16(out, crc)
	return out, nil
}

// trimTrailingZeros trims trailing zero bytes from a v2 payload, but never
// below one byte.
func trimTrailingZeros(payload []byte) []byte {
	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	return payload[:n]
}

// encodePayload serialises content in AllFieldsReordered order. Positional
// arity/mapping validation happens in PositionalValues; this path
// always takes a name→Value map and requires every referenced field to
// exist and every field (base + extensions for v2) to be present.
func encodePayload(schema *Schema, m *Message, content map[string]Value, includeExtensions bool) ([]byte, error) {
	fields := m.FieldsReordered
	if includeExtensions {
		fields = m.AllFieldsReordered
	}

	for name := range content {
		if _, ok := m.FieldByName(name); !ok {
			return nil, &EncodeError{Message: m.Name, Field: name, Reason: "unknown field"}
		}
	}

	buf := make([]byte, 0, 64)
	for _, f := range fields {
		v, ok := content[f.Name]
		if !ok {
			return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "missing value"}
		}
		encoded, err := encodeField(schema, m, f, v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	return buf, nil
}

// PositionalValues maps content onto AllFields declaration order (not
// reordered) for callers that prefer positional args over a name map.
func PositionalValues(m *Message, values ...Value) (map[string]Value, error) {
	if len(values) != len(m.AllFields) {
		return nil, &EncodeError{Message: m.Name, Reason: "wrong positional arity"}
	}
	content := make(map[string]Value, len(values))
	for i, f := range m.AllFields {
		content[f.Name] = values[i]
	}
	return content, nil
}

func encodeField(schema *Schema, m *Message, f Field, v Value) ([]byte, error) {
	// Enum-bound scalar fields accept a symbolic entry name.
	resolved := v
	if f.EnumName != "" && f.Display != "bitmask" && !f.isVector() {
		if name, ok := v.Text(); ok {
			if schema != nil {
				if enum, ok := schema.Enums[f.EnumName]; ok {
					if entry, ok := enum.EntryByName(name); ok {
						resolved = IntValue(entry.Value)
					} else {
						return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "unresolvable enum symbol: " + name}
					}
				}
			}
		}
	}

	if f.isString() {
		text, _ := resolved.Text()
		out := make([]byte, f.Size)
		copy(out, text)
		return out, nil
	}

	if f.isVector() {
		return encodeVector(m, f, resolved)
	}

	return encodeScalar(m, f, resolved)
}

func encodeScalar(m *Message, f Field, v Value) ([]byte, error) {
	out := make([]byte, f.Size)
	switch f.Kind {
	case PrimF32:
		fv, ok := v.Float()
		if !ok {
			return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected float"}
		}
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(fv)))
	case PrimF64:
		fv, ok := v.Float()
		if !ok {
			return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected float"}
		}
		binary.LittleEndian.PutUint64(out, math.Float64bits(fv))
	default:
		if f.Signed {
			iv, ok := v.Int()
			if !ok {
				return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected integer"}
			}
			putInt(out, f.ElemSize, uint64(iv))
		} else {
			uv, ok := v.Uint()
			if !ok {
				return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected integer"}
			}
			putInt(out, f.ElemSize, uv)
		}
	}
	return out, nil
}

func encodeVector(m *Message, f Field, v Value) ([]byte, error) {
	out := make([]byte, 0, f.Size)
	switch f.Kind {
	case PrimF32:
		vec, ok := v.FloatVec()
		if !ok || len(vec) != f.Count {
			return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected float vector of correct length"}
		}
		for _, fv := range vec {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(fv)))
			out = append(out, b...)
		}
	case PrimF64:
		vec, ok := v.FloatVec()
		if !ok || len(vec) != f.Count {
			return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected float vector of correct length"}
		}
		for _, fv := range vec {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, math.Float64bits(fv))
			out = append(out, b...)
		}
	default:
		if f.Signed {
			vec, ok := v.IntVec()
			if !ok || len(vec) != f.Count {
				return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected int vector of correct length"}
			}
			for _, iv := range vec {
				b := make([]byte, f.ElemSize)
				putInt(b, f.ElemSize, uint64(iv))
				out = append(out, b...)
			}
		} else {
			vec, ok := v.UintVec()
			if !ok || len(vec) != f.Count {
				return nil, &EncodeError{Message: m.Name, Field: f.Name, Reason: "expected uint vector of correct length"}
			}
			for _, uv := range vec {
				b := make([]byte, f.ElemSize)
				putInt(b, f.ElemSize, uv)
				out = append(out, b...)
			}
		}
	}
	return out, nil
}

func putInt(out []byte, size int, v uint64) {
	switch size {
	case 1:
		out[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(out, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(out, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(out, v)
	}
}

func getInt(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// DecodePayload decodes a raw payload (already stripped of header/CRC) into
// a name→Value content map, applying enum/bitmask resolution. Payloads
// shorter than the message's full expected size (v2 truncation) are
// zero-padded before splitting.
func DecodePayload(schema *Schema, m *Message, payload []byte) (map[string]Value, error) {
	expected := 0
	for _, f := range m.AllFieldsReordered {
		expected += f.Size
	}
	if len(payload) < expected {
		padded := make([]byte, expected)
		copy(padded, payload)
		payload = padded
	}

	content := make(map[string]Value, len(m.AllFields))
	offset := 0
	for _, f := range m.AllFieldsReordered {
		raw := payload[offset : offset+f.Size]
		offset += f.Size

		v, err := decodeFieldRaw(schema, m, f, raw)
		if err != nil {
			return nil, err
		}
		content[f.Name] = v
	}
	return content, nil
}

func decodeFieldRaw(schema *Schema, m *Message, f Field, raw []byte) (Value, error) {
	if f.isString() {
		end := len(raw)
		for end > 0 && raw[end-1] == 0 {
			end--
		}
		return TextValue(string(raw[:end])), nil
	}

	if f.isVector() {
		return decodeVector(f, raw), nil
	}

	scalar := decodeScalar(f, raw)

	if f.Display == "bitmask" && f.EnumName != "" {
		u, _ := scalar.Uint()
		if schema != nil {
			if enum, ok := schema.Enums[f.EnumName]; ok {
				return EnumSetValue(enum.DecodeBitmask(u)), nil
			}
		}
		return EnumSetValue(nil), nil
	}

	if f.EnumName != "" {
		iv, _ := scalar.Int()
		if schema != nil {
			if enum, ok := schema.Enums[f.EnumName]; ok {
				if entry, ok := enum.EntryByValue(iv); ok {
					return EnumNameValue(entry.Name), nil
				}
				return Value{}, &DecodeError{Message: m.Name, Field: f.Name, Reason: "no enum entry for value"}
			}
		}
	}

	return scalar, nil
}

func decodeScalar(f Field, raw []byte) Value {
	switch f.Kind {
	case PrimF32:
		return FloatValue(float64(math.Float32frombits(uint32(getInt(raw)))))
	case PrimF64:
		return FloatValue(math.Float64frombits(getInt(raw)))
	default:
		u := getInt(raw)
		if f.Signed {
			return IntValue(signExtend(u, f.ElemSize))
		}
		return UintValue(u)
	}
}

func signExtend(u uint64, size int) int64 {
	switch size {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

func decodeVector(f Field, raw []byte) Value {
	switch f.Kind {
	case PrimF32:
		out := make([]float64, f.Count)
		for i := 0; i < f.Count; i++ {
			out[i] = float64(math.Float32frombits(uint32(getInt(raw[i*4 : i*4+4]))))
		}
		return FloatVecValue(out)
	case PrimF64:
		out := make([]float64, f.Count)
		for i := 0; i < f.Count; i++ {
			out[i] = math.Float64frombits(getInt(raw[i*8 : i*8+8]))
		}
		return FloatVecValue(out)
	default:
		if f.Signed {
			out := make([]int64, f.Count)
			for i := 0; i < f.Count; i++ {
				out[i] = signExtend(getInt(raw[i*f.ElemSize:(i+1)*f.ElemSize]), f.ElemSize)
			}
			return IntVecValue(out)
		}
		out := make([]uint64, f.Count)
		for i := 0; i < f.Count; i++ {
			out[i] = getInt(raw[i*f.ElemSize : (i+1)*f.ElemSize])
		}
		return UintVecValue(out)
	}
}
