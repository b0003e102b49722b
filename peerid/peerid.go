// Package peerid generates and represents the 20-byte client identity
// a BitTorrent client presents to trackers and peers for the lifetime
// of one process.
//
// Grounded in client.go's clientID: a fixed Azureus-style prefix
// ("-" + two-letter client code + four-digit version + "-") followed
// by random bytes.
package peerid

import "crypto/rand"

// ID is an opaque 20-byte peer identity.
type ID [20]byte

// clientPrefix identifies this implementation and its version to the
// swarm, Azureus-style: '-' + 2-letter client code + 4-digit version + '-'.
var clientPrefix = [8]byte{'-', 'G', 'B', '0', '1', '0', '0', '-'}

// New generates a fresh peer identity: the client prefix followed by
// 12 cryptographically random bytes.
func New() (ID, error) {
	var id ID
	copy(id[:], clientPrefix[:])
	if _, err := rand.Read(id[8:]); err != nil {
		return ID{}, err
	}
	return id, nil
}

func (id ID) String() string {
	return string(id[:])
}
