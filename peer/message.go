package peer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arjunmenon/gobt/bitfield"
)

// MessageID identifies the kind of a framed peer message. All
// multi-byte integers in message payloads are big-endian, per the
// BitTorrent wire protocol.
type MessageID uint8

const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldMsg
	Request
	Piece
	Cancel
	Port
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case BitfieldMsg:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case Port:
		return "port"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Message is one framed peer-wire message. A zero-length wire frame
// (length prefix 0) is the KeepAlive message, represented here with
// KeepAlive set and every other field at its zero value.
type Message struct {
	KeepAlive bool
	ID        MessageID
	Payload   []byte
}

// MessageIDError reports an unrecognised message ID byte.
type MessageIDError struct {
	ID uint8
}

func (e *MessageIDError) Error() string {
	return fmt.Sprintf("peer: unknown message id %d", e.ID)
}

// PayloadLengthError reports a payload whose length does not match
// what its message ID requires.
type PayloadLengthError struct {
	ID  MessageID
	Len int
}

func (e *PayloadLengthError) Error() string {
	return fmt.Sprintf("peer: message %s has payload length %d", e.ID, e.Len)
}

// fixedPayloadLen gives the required payload length for message kinds
// with a fully-specified, fixed-size payload. Bitfield and Piece are
// variable length and are excluded (-1).
func fixedPayloadLen(id MessageID) int {
	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		return 0
	case Have:
		return 4
	case Request, Cancel:
		return 12
	case Port:
		return 2
	default:
		return -1
	}
}

func validatePayload(id MessageID, payload []byte) error {
	switch id {
	case Choke, Unchoke, Interested, NotInterested, Have, Request, Cancel, Port:
		want := fixedPayloadLen(id)
		if len(payload) != want {
			return &PayloadLengthError{ID: id, Len: len(payload)}
		}
	case BitfieldMsg:
		// any length is valid; the caller bounds it against piece count.
	case Piece:
		if len(payload) < 8 {
			return &PayloadLengthError{ID: id, Len: len(payload)}
		}
	default:
		return &MessageIDError{ID: uint8(id)}
	}
	return nil
}

// ReadMessage blocks until one complete framed message arrives,
// returning it. It may return the KeepAlive message.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return Message{KeepAlive: true}, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	id := MessageID(body[0])
	payload := body[1:]
	if err := validatePayload(id, payload); err != nil {
		return Message{}, err
	}
	return Message{ID: id, Payload: payload}, nil
}

// Serialise returns the framed wire bytes for m: a 4-byte big-endian
// length prefix followed by the message ID byte and payload (or just
// the 4 zero bytes for KeepAlive).
func (m Message) Serialise() []byte {
	if m.KeepAlive {
		return make([]byte, 4)
	}
	out := make([]byte, 4+1+len(m.Payload))
	binary.BigEndian.PutUint32(out, uint32(1+len(m.Payload)))
	out[4] = byte(m.ID)
	copy(out[5:], m.Payload)
	return out
}

// WriteMessage serialises and writes m to w in one call.
func WriteMessage(w io.Writer, m Message) error {
	_, err := w.Write(m.Serialise())
	return err
}

// KeepAliveMessage returns the KeepAlive message.
func KeepAliveMessage() Message { return Message{KeepAlive: true} }

// NewChoke, NewUnchoke, NewInterested and NewNotInterested build the
// four zero-payload state messages.
func NewChoke() Message         { return Message{ID: Choke} }
func NewUnchoke() Message       { return Message{ID: Unchoke} }
func NewInterested() Message    { return Message{ID: Interested} }
func NewNotInterested() Message { return Message{ID: NotInterested} }

// NewHave builds a Have message announcing piece index.
func NewHave(index uint32) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return Message{ID: Have, Payload: payload}
}

// ParseHave extracts the piece index from a Have message's payload.
// The caller must have already checked m.ID == Have.
func ParseHave(m Message) uint32 {
	return binary.BigEndian.Uint32(m.Payload)
}

// NewBitfieldMessage builds a Bitfield message from bf.
func NewBitfieldMessage(bf bitfield.Bitfield) Message {
	return Message{ID: BitfieldMsg, Payload: append([]byte(nil), bf...)}
}

// ParseBitfield returns the bitfield carried by a Bitfield message.
// The caller must have already checked m.ID == BitfieldMsg.
func ParseBitfield(m Message) bitfield.Bitfield {
	return bitfield.Bitfield(m.Payload)
}

// blockRequest is the common 12-byte payload shape of Request and Cancel.
type blockRequest struct {
	Index, Begin, Length uint32
}

func (b blockRequest) marshal() []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:], b.Index)
	binary.BigEndian.PutUint32(payload[4:], b.Begin)
	binary.BigEndian.PutUint32(payload[8:], b.Length)
	return payload
}

func parseBlockRequest(payload []byte) blockRequest {
	return blockRequest{
		Index:  binary.BigEndian.Uint32(payload[0:]),
		Begin:  binary.BigEndian.Uint32(payload[4:]),
		Length: binary.BigEndian.Uint32(payload[8:]),
	}
}

// NewRequest builds a Request message for a block of a piece.
func NewRequest(index, begin, length uint32) Message {
	return Message{ID: Request, Payload: blockRequest{index, begin, length}.marshal()}
}

// ParseRequest extracts index, begin and length from a Request
// message's payload. The caller must have already checked m.ID == Request.
func ParseRequest(m Message) (index, begin, length uint32) {
	b := parseBlockRequest(m.Payload)
	return b.Index, b.Begin, b.Length
}

// NewCancel builds a Cancel message with the same layout as Request.
func NewCancel(index, begin, length uint32) Message {
	return Message{ID: Cancel, Payload: blockRequest{index, begin, length}.marshal()}
}

// ParseCancel extracts index, begin and length from a Cancel message's
// payload. The caller must have already checked m.ID == Cancel.
func ParseCancel(m Message) (index, begin, length uint32) {
	b := parseBlockRequest(m.Payload)
	return b.Index, b.Begin, b.Length
}

// NewPiece builds a Piece message carrying block for piece index
// starting at begin.
func NewPiece(index, begin uint32, block []byte) Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:], index)
	binary.BigEndian.PutUint32(payload[4:], begin)
	copy(payload[8:], block)
	return Message{ID: Piece, Payload: payload}
}

// ParsePiece extracts index, begin and the block bytes from a Piece
// message's payload. The caller must have already checked m.ID == Piece.
func ParsePiece(m Message) (index, begin uint32, block []byte) {
	return binary.BigEndian.Uint32(m.Payload[0:]), binary.BigEndian.Uint32(m.Payload[4:]), m.Payload[8:]
}

// NewPort builds a Port message announcing a DHT listening port (BEP 5).
func NewPort(port uint16) Message {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, port)
	return Message{ID: Port, Payload: payload}
}

// ParsePort extracts the port from a Port message's payload. The
// caller must have already checked m.ID == Port.
func ParsePort(m Message) uint16 {
	return binary.BigEndian.Uint16(m.Payload)
}
