// Package handshake implements a compact preamble+version exchange that
// lets two peers confirm they belong to the same cluster and agree on a
// wire protocol version before any application frame crosses the
// connection: a single 6-byte frame from each side carrying a cluster
// preamble and the sender's version, negotiated down to the highest
// version both sides understand.
package handshake

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"net"

	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// Preamble identifies a cluster. Two peers with different preambles must
// never complete a handshake.
type Preamble uint32

// ComputePreamble derives the preamble from a cluster name using FNV-1a,
// since this is an identity check over a short string, not a
// load-distribution hash (that role belongs to murmur3 in pkg/transport/pool).
func ComputePreamble(clusterName string) Preamble {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clusterName))
	return Preamble(h.Sum32())
}

// Role distinguishes which half of the state machine to run.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func writeFrame(w io.Writer, p Preamble, v wire.Version) error {
	var buf [6]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(p))
	binary.BigEndian.PutUint16(buf[4:6], uint16(v))
	_, err := w.Write(buf[:])
	return err
}

func versionKnown(supported []wire.Version, v wire.Version) bool {
	for _, s := range supported {
		if s == v {
			return true
		}
	}
	return false
}

func readFrame(r io.Reader) (Preamble, wire.Version, error) {
	var buf [6]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	return Preamble(binary.BigEndian.Uint32(buf[0:4])), wire.Version(binary.BigEndian.Uint16(buf[4:6])), nil
}

// Perform runs the handshake state machine over conn and, on success,
// returns the negotiated version and its bound codec. On any failure the
// connection is already closed before returning.
func Perform(conn net.Conn, role Role, preamble Preamble, supported []wire.Version) (wire.Version, wire.Codec, error) {
	switch role {
	case RoleClient:
		if err := writeFrame(conn, preamble, wire.Latest); err != nil {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: write preamble", err)
		}
		peerPreamble, negotiated, err := readFrame(conn)
		if err != nil {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: read preamble", err)
		}
		if peerPreamble != preamble {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: preamble mismatch", nil)
		}
		if !versionKnown(supported, negotiated) {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: unknown negotiated version", nil)
		}
		codec, ok := wire.CodecFor(negotiated)
		if !ok {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: unknown negotiated version", nil)
		}
		return negotiated, codec, nil

	case RoleServer:
		peerPreamble, peerVersion, err := readFrame(conn)
		if err != nil {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: read preamble", err)
		}
		if peerPreamble != preamble {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: preamble mismatch", nil)
		}
		negotiated, ok := wire.NegotiateServer(supported, peerVersion)
		if !ok {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: no compatible version", nil)
		}
		if err := writeFrame(conn, preamble, negotiated); err != nil {
			conn.Close()
			return 0, nil, errs.Protocol("handshake: write negotiated version", err)
		}
		codec, _ := wire.CodecFor(negotiated)
		return negotiated, codec, nil

	default:
		conn.Close()
		return 0, nil, errs.Protocol("handshake: unknown role", nil)
	}
}
