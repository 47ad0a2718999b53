package mavlink

import (
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"
)

// Packet is a fully decoded incoming message, paired with its schema entry.
type Packet struct {
	Message *Message
	Content map[string]Value
}

// framer resynchronises on frame markers in a byte stream and emits decoded
// Packets. It holds a small internal buffer (ibuf) so a partially read
// frame can be abandoned and resync resumed without losing bytes that were
// already pulled off the transport.
type framer struct {
	schema    *Schema
	transport Transport
	log       *logrus.Logger

	ibuf []byte
}

func newFramer(schema *Schema, transport Transport, log *logrus.Logger) *framer {
	return &framer{schema: schema, transport: transport, log: log}
}

// next reads and returns the next valid Packet, silently discarding garbage
// bytes and malformed frames (FrameError) while resynchronising. It returns
// a non-nil error only for a fatal TransportError.
func (fr *framer) next() (*Packet, error) {
	for {
		marker, err := fr.nextMarker()
		if err != nil {
			return nil, err
		}

		version := V1
		if marker == MarkerV2 {
			version = V2
		}

		header, err := fr.take(headerSize(version))
		if err != nil {
			return nil, err
		}

		frame := decodeHeader(version, header)

		remaining := int(frame.PayloadSize) + 2
		if version == V2 && frame.Incompat&incompatFlagSigned != 0 {
			remaining += signatureSize
		}

		rest, err := fr.take(remaining)
		if err != nil {
			return nil, err
		}

		frame.Payload = rest[:frame.PayloadSize]
		frame.CRC = binary.LittleEndian.Uint16(rest[frame.PayloadSize : frame.PayloadSize+2])

		msg, ok := fr.schema.MessagesByID[frame.MsgID]
		if !ok {
			fr.log.WithField("msgid", frame.MsgID).Debug("dropping frame for unknown message id")
			continue
		}

		crc := crcInit
		crc = crcAccumulateBytes(crc, header)
		crc = crcAccumulateBytes(crc, frame.Payload)
		crc = crcAccumulate(crc, msg.CRCExtra)

		if crc != frame.CRC {
			fr.log.WithFields(logrus.Fields{"message": msg.Name, "expected": crc, "got": frame.CRC}).Warn("CRC mismatch, dropping frame")
			// Put back every byte after the discarded marker so the next
			// marker scan resumes inside them.
			fr.ibuf = append(append(append([]byte{}, header...), rest...), fr.ibuf...)
			continue
		}

		content, err := DecodePayload(fr.schema, msg, frame.Payload)
		if err != nil {
			// DecodeError is scoped to this packet; the reader keeps going.
			fr.log.WithError(err).Warn("failed to decode packet content")
			continue
		}

		return &Packet{Message: msg, Content: content}, nil
	}
}

// decodeHeader parses a header (marker excluded) already known to be
// headerSize(version) bytes long.
func decodeHeader(version Version, header []byte) Frame {
	if version == V1 {
		return Frame{
			Version:     V1,
			PayloadSize: header[0],
			Seq:         header[1],
			SysID:       header[2],
			CompID:      header[3],
			MsgID:       uint32(header[4]),
		}
	}
	return Frame{
		Version:     V2,
		PayloadSize: header[0],
		Incompat:    header[1],
		Compat:      header[2],
		Seq:         header[3],
		SysID:       header[4],
		CompID:      header[5],
		MsgID:       uint32(header[6]) | uint32(header[7])<<8 | uint32(header[8])<<16,
	}
}

// nextMarker returns the next byte in the stream equal to a version marker,
// discarding any garbage before it.
func (fr *framer) nextMarker() (byte, error) {
	for {
		if len(fr.ibuf) == 0 {
			b, err := fr.readByte()
			if err != nil {
				return 0, err
			}
			if b == MarkerV1 || b == MarkerV2 {
				return b, nil
			}
			continue
		}

		idx := -1
		for i, b := range fr.ibuf {
			if b == MarkerV1 || b == MarkerV2 {
				idx = i
				break
			}
		}
		if idx == -1 {
			fr.ibuf = fr.ibuf[:0]
			continue
		}
		marker := fr.ibuf[idx]
		fr.ibuf = fr.ibuf[idx+1:]
		return marker, nil
	}
}

// take reads exactly n more bytes, first draining ibuf then topping up from
// the transport.
func (fr *framer) take(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	if len(fr.ibuf) > 0 {
		take := len(fr.ibuf)
		if take > n {
			take = n
		}
		out = append(out, fr.ibuf[:take]...)
		fr.ibuf = fr.ibuf[take:]
	}
	for len(out) < n {
		buf := make([]byte, n-len(out))
		read, err := fr.transport.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil, &TransportError{Op: "read", Err: io.EOF}
			}
			return nil, &TransportError{Op: "read", Err: err}
		}
		out = append(out, buf[:read]...)
	}
	return out, nil
}

// readByte reads a single byte directly from the transport.
func (fr *framer) readByte() (byte, error) {
	b, err := fr.transport.ReadByte()
	if err != nil {
		return 0, &TransportError{Op: "read byte", Err: err}
	}
	return b, nil
}
