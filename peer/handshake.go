package peer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arjunmenon/gobt/metainfo"
	"github.com/arjunmenon/gobt/peerid"
)

// Protocol is the fixed protocol string every handshake carries.
const Protocol = "BitTorrent protocol"

// HandshakeSize is the total wire size of a Handshake message:
// 1 (pstrlen) + 19 (pstr) + 8 (reserved) + 20 (info hash) + 20 (peer id).
const HandshakeSize = 1 + len(Protocol) + 8 + 20 + 20

// Handshake is the fixed 68-byte layout exchanged before any framed
// message. It is modelled as a typed value, isolated from the live
// socket, so it can be round-trip tested on its own (see handshake_test.go).
type Handshake struct {
	InfoHash metainfo.Fingerprint
	PeerID   peerid.ID
}

// Sentinel validation errors for a received handshake.
var (
	ErrProtocolStringLen = fmt.Errorf("peer: handshake protocol-string length byte is not %d", len(Protocol))
	ErrProtocolString    = fmt.Errorf("peer: handshake protocol string does not match %q", Protocol)
)

// Marshal serialises h into the 68-byte wire layout. The reserved
// extension bits are always zero: this core implements no extensions
// beyond the reserved bits themselves.
func (h Handshake) Marshal() []byte {
	buf := make([]byte, HandshakeSize)
	buf[0] = byte(len(Protocol))
	copy(buf[1:], Protocol)
	// buf[20:28] reserved, left zero
	copy(buf[28:48], h.InfoHash[:])
	copy(buf[48:68], h.PeerID[:])
	return buf
}

// Unmarshal parses a 68-byte handshake. It validates the
// protocol-string length and contents but accepts any info hash: the
// connection itself does not know which torrent it expects, so
// comparing against a locally expected hash is the caller's job (see
// Connect).
func Unmarshal(buf []byte) (Handshake, error) {
	if len(buf) != HandshakeSize {
		return Handshake{}, fmt.Errorf("peer: handshake has length %d, want %d", len(buf), HandshakeSize)
	}
	if int(buf[0]) != len(Protocol) {
		return Handshake{}, ErrProtocolStringLen
	}
	if !bytes.Equal(buf[1:1+len(Protocol)], []byte(Protocol)) {
		return Handshake{}, ErrProtocolString
	}
	var h Handshake
	copy(h.InfoHash[:], buf[28:48])
	copy(h.PeerID[:], buf[48:68])
	return h, nil
}

// ReadHandshake reads exactly HandshakeSize bytes from r and parses them.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, err
	}
	return Unmarshal(buf)
}
