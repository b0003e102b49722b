// Package peer owns one transport stream to a remote BitTorrent peer:
// the handshake state machine and the framed message stream that
// follows it.
package peer

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/arjunmenon/gobt/metainfo"
	"github.com/arjunmenon/gobt/peerid"
)

// DefaultConnectTimeout bounds the transport connect call.
const DefaultConnectTimeout = 5 * time.Second

// ErrInfoHashMismatch is returned by Connect when the remote peer
// confirms a different info hash than the one we sent. Unmarshal
// itself accepts any info hash; the comparison against the expected
// one is made after the reply is read, and Connect closes the
// connection when they differ.
var ErrInfoHashMismatch = fmt.Errorf("peer: remote confirmed a different info hash")

// PeerConnection owns one transport stream to a peer, exclusively, for
// its lifetime. Sends and receives are not meant to be called
// concurrently from more than one goroutine; ownership sits with
// exactly one worker.
type PeerConnection struct {
	conn     net.Conn
	remoteID peerid.ID
	sendMu   sync.Mutex
}

// Connect dials address, performs the handshake for infoHash, and
// validates the remote's confirmed info hash. On any failure the
// underlying connection is closed before returning.
func Connect(address string, infoHash metainfo.Fingerprint, myID peerid.ID, timeout time.Duration) (*PeerConnection, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: dialing %s", address)
	}
	pc, err := performHandshake(conn, infoHash, myID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return pc, nil
}

// performHandshake runs the handshake state machine over an already-
// established transport: Fresh -> send handshake -> read handshake ->
// validate -> Open, or -> Failed (returning an error and leaving conn
// open for the caller to close).
func performHandshake(conn net.Conn, infoHash metainfo.Fingerprint, myID peerid.ID) (*PeerConnection, error) {
	out := Handshake{InfoHash: infoHash, PeerID: myID}.Marshal()
	if _, err := conn.Write(out); err != nil {
		return nil, errors.Wrap(err, "peer: writing handshake")
	}

	reply, err := ReadHandshake(conn)
	if err != nil {
		return nil, errors.Wrap(err, "peer: reading handshake reply")
	}
	if reply.InfoHash != infoHash {
		return nil, ErrInfoHashMismatch
	}

	return &PeerConnection{conn: conn, remoteID: reply.PeerID}, nil
}

// RemoteID returns the peer identity confirmed by the handshake.
func (pc *PeerConnection) RemoteID() peerid.ID {
	return pc.remoteID
}

// Send serialises and writes m in one call. Concurrent Send calls on
// the same connection are serialised so a message is never partially
// interleaved with another.
func (pc *PeerConnection) Send(m Message) error {
	pc.sendMu.Lock()
	defer pc.sendMu.Unlock()
	if err := WriteMessage(pc.conn, m); err != nil {
		return errors.Wrap(err, "peer: sending message")
	}
	return nil
}

// Recv blocks until one complete framed message is available and
// returns it; it may return the KeepAlive message.
func (pc *PeerConnection) Recv() (Message, error) {
	m, err := ReadMessage(pc.conn)
	if err != nil {
		return Message{}, errors.Wrap(err, "peer: receiving message")
	}
	return m, nil
}

// SetDeadline sets a read/write deadline on the underlying transport.
// Per-message read deadlines are an open question in the spec (no
// default is imposed here); callers that want one can call this
// before Recv.
func (pc *PeerConnection) SetDeadline(t time.Time) error {
	return pc.conn.SetDeadline(t)
}

// Close releases the underlying transport. A blocked Recv fails with
// an I/O error, which callers should treat as terminal for this
// connection.
func (pc *PeerConnection) Close() error {
	return pc.conn.Close()
}
