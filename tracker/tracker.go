// Package tracker implements the HTTP tracker announce client: it
// builds the announce request, performs the GET, and decodes the
// bencoded response into a peer list. Both the compact (BEP 23) and
// verbose peer list formats are supported, along with the optional
// event/numwant/ip announce parameters.
package tracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/arjunmenon/gobt/bencode"
	"github.com/arjunmenon/gobt/metainfo"
	"github.com/arjunmenon/gobt/peerid"
)

// DefaultTimeout is the HTTP client timeout for one announce round trip.
const DefaultTimeout = 30 * time.Second

// Mode selects how the tracker should format the peer list it returns.
type Mode int

const (
	Verbose Mode = iota
	NoPeerID
	Compact
)

// Event is an optional lifecycle event attached to an announce.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventStopped
	EventCompleted
)

func (e Event) queryValue() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCompleted:
		return "completed"
	default:
		return ""
	}
}

// Peer is one swarm member returned by the tracker: an optional peer
// id (present only in verbose responses that included one) and a
// network endpoint.
type Peer struct {
	ID   *peerid.ID
	IP   net.IP
	Port uint16
}

// Addr returns the peer's dialable "host:port" address.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// AnnounceParameters is the request-scoped, short-lived state for one
// announce call.
type AnnounceParameters struct {
	InfoHash   metainfo.Fingerprint
	PeerID     peerid.ID
	Port       uint16
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Mode       Mode
	Event      Event
	NumWant    *int
	IP         net.IP
}

// AnnounceResponse is the tracker's reply: a refresh interval plus the
// peer list and optional swarm counts.
type AnnounceResponse struct {
	Interval    int
	MinInterval *int
	Complete    *int
	Incomplete  *int
	Peers       []Peer
}

// ErrUnsupportedProtocol is returned when the announce URL's scheme is
// neither http nor https.
var ErrUnsupportedProtocol = fmt.Errorf("tracker: unsupported protocol (must be http or https)")

// FailureError wraps a tracker-level `failure reason` string. It is
// terminal for this announce attempt; the caller may retry after the
// announce interval.
type FailureError struct {
	Reason string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("tracker: failure reason: %s", e.Reason)
}

// ResponseFormatError reports a malformed tracker response field.
type ResponseFormatError struct {
	Detail string
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("tracker: malformed response: %s", e.Detail)
}

// Announce issues an HTTP GET against announceURL with params encoded
// into its query string, decodes the bencoded body, and returns the
// parsed AnnounceResponse.
func Announce(announceURL *url.URL, params AnnounceParameters) (*AnnounceResponse, error) {
	if announceURL.Scheme != "http" && announceURL.Scheme != "https" {
		return nil, ErrUnsupportedProtocol
	}

	reqURL := buildURL(announceURL, params)

	client := &http.Client{Timeout: DefaultTimeout}
	res, err := client.Get(reqURL)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: performing announce request")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tracker: announce returned HTTP status %s", res.Status)
	}

	body, err := bencode.DecodeReader(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: decoding announce response")
	}

	return parseResponse(body)
}

// buildURL appends the announce query parameters to announceURL's
// existing query string.
func buildURL(announceURL *url.URL, params AnnounceParameters) string {
	var buf bytes.Buffer
	existing := announceURL.RawQuery

	u := *announceURL
	write := func(key, value string) {
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(value)
	}

	write("info_hash", percentEncode(params.InfoHash[:]))
	write("peer_id", percentEncode(params.PeerID[:]))
	write("port", strconv.FormatUint(uint64(params.Port), 10))
	write("uploaded", strconv.FormatUint(params.Uploaded, 10))
	write("downloaded", strconv.FormatUint(params.Downloaded, 10))
	write("left", strconv.FormatUint(params.Left, 10))

	switch params.Mode {
	case NoPeerID:
		write("no_peer_id", "1")
	case Compact:
		write("compact", "1")
	}

	if ev := params.Event.queryValue(); ev != "" {
		write("event", ev)
	}
	if params.NumWant != nil {
		write("numwant", strconv.Itoa(*params.NumWant))
	}
	if params.IP != nil {
		write("ip", params.IP.String())
	}

	if existing != "" {
		u.RawQuery = existing + "&" + buf.String()
	} else {
		u.RawQuery = buf.String()
	}
	return u.String()
}

// percentEncode escapes every non-alphanumeric byte. This is stricter
// than url.QueryEscape (which leaves -_.~ and space-as-plus unescaped)
// and is needed because info_hash/peer_id are raw 20-byte binary
// values, not text.
func percentEncode(b []byte) string {
	const hex = "0123456789ABCDEF"
	var buf bytes.Buffer
	for _, c := range b {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			continue
		}
		buf.WriteByte('%')
		buf.WriteByte(hex[c>>4])
		buf.WriteByte(hex[c&0xf])
	}
	return buf.String()
}

func parseResponse(v bencode.Value) (*AnnounceResponse, error) {
	if v.Kind != bencode.Dict {
		return nil, &ResponseFormatError{Detail: "response is not a dictionary"}
	}
	if failure, ok := v.Field("failure reason"); ok {
		return nil, &FailureError{Reason: failure.Str}
	}

	interval, ok := v.Field("interval")
	if !ok || interval.Kind != bencode.Integer {
		return nil, &ResponseFormatError{Detail: "missing interval"}
	}

	resp := &AnnounceResponse{Interval: int(interval.Int)}

	if mi, ok := v.Field("min interval"); ok && mi.Kind == bencode.Integer {
		n := int(mi.Int)
		resp.MinInterval = &n
	}
	if c, ok := v.Field("complete"); ok && c.Kind == bencode.Integer {
		n := int(c.Int)
		resp.Complete = &n
	}
	if ic, ok := v.Field("incomplete"); ok && ic.Kind == bencode.Integer {
		n := int(ic.Int)
		resp.Incomplete = &n
	}

	peersField, ok := v.Field("peers")
	if !ok {
		return nil, &ResponseFormatError{Detail: "missing peers"}
	}

	switch peersField.Kind {
	case bencode.String:
		peers, err := parseCompactPeers(peersField.Str)
		if err != nil {
			return nil, err
		}
		resp.Peers = peers
	case bencode.List:
		peers, err := parseVerbosePeers(peersField.List)
		if err != nil {
			return nil, err
		}
		resp.Peers = peers
	default:
		return nil, &ResponseFormatError{Detail: "peers is neither a byte string nor a list"}
	}

	return resp, nil
}

// parseCompactPeers parses a BEP 23 compact peer list: consecutive
// 6-byte (IPv4 big-endian, port big-endian) records.
func parseCompactPeers(raw string) ([]Peer, error) {
	data := []byte(raw)
	if len(data)%6 != 0 {
		return nil, &ResponseFormatError{Detail: fmt.Sprintf("compact peers length %d not a multiple of 6", len(data))}
	}
	peers := make([]Peer, 0, len(data)/6)
	for i := 0; i < len(data); i += 6 {
		ip := net.IP(append([]byte(nil), data[i:i+4]...))
		port := binary.BigEndian.Uint16(data[i+4 : i+6])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}

func parseVerbosePeers(list []bencode.Value) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for i, item := range list {
		if item.Kind != bencode.Dict {
			return nil, &ResponseFormatError{Detail: fmt.Sprintf("verbose peer %d is not a dictionary", i)}
		}
		ipField, ok := item.Field("ip")
		if !ok || ipField.Kind != bencode.String {
			return nil, &ResponseFormatError{Detail: fmt.Sprintf("verbose peer %d missing ip", i)}
		}
		ip := net.ParseIP(ipField.Str)
		if ip == nil {
			return nil, &ResponseFormatError{Detail: fmt.Sprintf("verbose peer %d has an unparseable ip %q", i, ipField.Str)}
		}
		portField, ok := item.Field("port")
		if !ok || portField.Kind != bencode.Integer || portField.Int < 0 || portField.Int > 0xFFFF {
			return nil, &ResponseFormatError{Detail: fmt.Sprintf("verbose peer %d has an invalid port", i)}
		}
		peer := Peer{IP: ip, Port: uint16(portField.Int)}
		if idField, ok := item.Field("peer id"); ok && idField.Kind == bencode.String {
			if len(idField.Str) != 20 {
				return nil, &ResponseFormatError{Detail: fmt.Sprintf("verbose peer %d has a peer id of length %d", i, len(idField.Str))}
			}
			var id peerid.ID
			copy(id[:], idField.Str)
			peer.ID = &id
		}
		peers = append(peers, peer)
	}
	return peers, nil
}
