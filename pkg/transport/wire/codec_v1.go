package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single decoded frame, stopping a corrupt or
// hostile length prefix from driving an unbounded allocation.
const maxFrameSize = 4 << 20 // 4 MiB

const (
	frameKindRequest uint8 = 1
	frameKindReply   uint8 = 2
)

// codecV1 is the first (and currently only) post-handshake frame format:
// a 4-byte big-endian length prefix followed by a kind byte and the
// variant's fields, using the fd/fe/ff varint length prefixing of binio.go.
type codecV1 struct{}

func (codecV1) Version() Version { return V1 }

func (codecV1) Encode(w io.Writer, msg Message) error {
	var buf bytes.Buffer
	bw := &binWriter{W: &buf}

	switch m := msg.(type) {
	case Request:
		bw.write(frameKindRequest)
		bw.write(m.ID)
		bw.varString(m.Sender.Host)
		bw.write(uint16(m.Sender.Port))
		bw.varString(m.Subject)
		bw.varBytes(m.Payload)
	case Reply:
		bw.write(frameKindReply)
		bw.write(m.ID)
		bw.write(uint8(m.Status))
		bw.varBytes(m.Payload)
	default:
		return fmt.Errorf("wire: codec v1: unsupported message type %T", msg)
	}
	if bw.Err != nil {
		return bw.Err
	}

	frame := buf.Bytes()
	if len(frame) > maxFrameSize {
		return fmt.Errorf("wire: codec v1: frame too large: %d bytes", len(frame))
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(frame)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

func (codecV1) Decode(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("wire: codec v1: frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	br := &binReader{R: bytes.NewReader(body)}
	var kind uint8
	br.read(&kind)

	switch kind {
	case frameKindRequest:
		var req Request
		br.read(&req.ID)
		req.Sender.Host = br.varString()
		var port uint16
		br.read(&port)
		req.Sender.Port = int(port)
		req.Subject = br.varString()
		req.Payload = br.varBytes()
		if br.Err != nil {
			return nil, br.Err
		}
		return req, nil
	case frameKindReply:
		var rep Reply
		br.read(&rep.ID)
		var status uint8
		br.read(&status)
		rep.Status = Status(status)
		rep.Payload = br.varBytes()
		if br.Err != nil {
			return nil, br.Err
		}
		return rep, nil
	default:
		return nil, fmt.Errorf("wire: codec v1: unknown frame kind %d", kind)
	}
}
