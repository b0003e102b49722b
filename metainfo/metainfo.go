// Package metainfo binds a decoded bencode.Value to a typed
// TorrentDescriptor and computes the 20-byte info fingerprint that
// gives a torrent its identity on the wire. The fingerprint is always
// computed by re-encoding the info dictionary rather than slicing the
// original input bytes, so a non-canonically encoded .torrent file
// still yields the fingerprint its info dictionary actually hashes to.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"net/url"

	"github.com/pkg/errors"

	"github.com/arjunmenon/gobt/bencode"
)

// Fingerprint is an opaque 20-byte SHA-1 digest, used both as a
// torrent's info fingerprint and as a per-piece content hash.
type Fingerprint [20]byte

func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", [20]byte(f))
}

// File describes one file within a torrent: its byte length and its
// path as an ordered sequence of relative path segments.
type File struct {
	Length int64
	Path   []string
}

// Info is the parsed `info` sub-dictionary of a metainfo file, plus
// the fingerprint computed over its canonical re-encoding.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      []Fingerprint
	Files       []File
	Hash        Fingerprint
	multi       bool
}

// Multi reports whether this is a multi-file torrent (the `files` key
// was present in the info dictionary, rather than a single top-level
// `length`), regardless of how many entries that list holds.
func (inf *Info) Multi() bool {
	return inf.multi
}

// TotalLength returns the sum of every file's length.
func (inf *Info) TotalLength() int64 {
	var total int64
	for _, f := range inf.Files {
		total += f.Length
	}
	return total
}

// TorrentDescriptor is the immutable, fully bound representation of a
// metainfo file: the announce URL (plus any additional announce-list
// tiers, BEP 12) and the Info substructure.
type TorrentDescriptor struct {
	Announce     *url.URL
	AnnounceList []*url.URL
	Info         Info
}

// Sentinel errors named after the field or rule that failed to
// validate, so callers can branch with errors.As/errors.Is even after
// the error has been wrapped with additional context upstream.
var (
	ErrInvalidPiecesLength = errors.New("metainfo: pieces length is not a multiple of 20")
	ErrInvalidFileList     = errors.New("metainfo: invalid files list")
	ErrNotADictionary      = errors.New("metainfo: value is not a dictionary")
)

// MissingFieldError reports a required metainfo field that was absent
// or of the wrong bencode kind.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("metainfo: missing or malformed field %q", e.Field)
}

// IntegerOutOfBoundError reports a field whose integer value violates
// a domain constraint (e.g. a negative length).
type IntegerOutOfBoundError struct {
	Field string
	Value int64
}

func (e *IntegerOutOfBoundError) Error() string {
	return fmt.Sprintf("metainfo: field %q has out-of-bound value %d", e.Field, e.Value)
}

// Bind maps a decoded bencode.Value to a TorrentDescriptor and fixes
// its info fingerprint. The fingerprint is computed by re-encoding the
// info sub-dictionary with bencode.Encode, never by slicing the
// original input, so the codec stays the single source of
// canonicalisation: any divergence changes the fingerprint and breaks
// the handshake.
func Bind(v bencode.Value) (*TorrentDescriptor, error) {
	if v.Kind != bencode.Dict {
		return nil, ErrNotADictionary
	}

	announceField, ok := v.Field("announce")
	if !ok || announceField.Kind != bencode.String || announceField.Str == "" {
		return nil, &MissingFieldError{Field: "announce"}
	}
	announceURL, err := url.Parse(announceField.Str)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: parsing announce URL")
	}
	if announceURL.Scheme != "http" && announceURL.Scheme != "https" {
		return nil, errors.Wrapf(&MissingFieldError{Field: "announce"}, "unsupported scheme %q", announceURL.Scheme)
	}

	announceList := []*url.URL{announceURL}
	if tiers, ok := v.Field("announce-list"); ok && tiers.Kind == bencode.List {
		if flattened := flattenAnnounceList(tiers.List); len(flattened) > 0 {
			announceList = flattened
		}
	}

	infoField, ok := v.Field("info")
	if !ok || infoField.Kind != bencode.Dict {
		return nil, &MissingFieldError{Field: "info"}
	}

	info, err := bindInfo(infoField)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: binding info dictionary")
	}

	return &TorrentDescriptor{
		Announce:     announceURL,
		AnnounceList: announceList,
		Info:         *info,
	}, nil
}

// flattenAnnounceList flattens a BEP 12 announce-list (a list of lists
// of URL strings) into an ordered, deduplicated slice of parsed URLs.
func flattenAnnounceList(tiers []bencode.Value) []*url.URL {
	var out []*url.URL
	seen := make(map[string]bool)
	for _, tier := range tiers {
		if tier.Kind != bencode.List {
			continue
		}
		for _, item := range tier.List {
			if item.Kind != bencode.String || item.Str == "" || seen[item.Str] {
				continue
			}
			u, err := url.Parse(item.Str)
			if err != nil {
				continue
			}
			seen[item.Str] = true
			out = append(out, u)
		}
	}
	return out
}

func bindInfo(v bencode.Value) (*Info, error) {
	name, ok := v.Field("name")
	if !ok || name.Kind != bencode.String || name.Str == "" {
		return nil, &MissingFieldError{Field: "name"}
	}

	pieceLength, ok := v.Field("piece length")
	if !ok || pieceLength.Kind != bencode.Integer {
		return nil, &MissingFieldError{Field: "piece length"}
	}
	if pieceLength.Int <= 0 {
		return nil, &IntegerOutOfBoundError{Field: "piece length", Value: pieceLength.Int}
	}

	pieces, ok := v.Field("pieces")
	if !ok || pieces.Kind != bencode.String {
		return nil, &MissingFieldError{Field: "pieces"}
	}
	hashes, err := splitPieces(pieces.Str)
	if err != nil {
		return nil, err
	}

	var files []File
	var multi bool
	if length, ok := v.Field("length"); ok {
		if length.Kind != bencode.Integer || length.Int < 0 {
			return nil, &IntegerOutOfBoundError{Field: "length", Value: length.Int}
		}
		files = []File{{Length: length.Int, Path: []string{name.Str}}}
	} else if fl, ok := v.Field("files"); ok {
		if fl.Kind != bencode.List || len(fl.List) == 0 {
			return nil, ErrInvalidFileList
		}
		files, err = parseFiles(fl.List)
		if err != nil {
			return nil, err
		}
		multi = true
	} else {
		return nil, &MissingFieldError{Field: "length or files"}
	}

	return &Info{
		Name:        name.Str,
		PieceLength: pieceLength.Int,
		Pieces:      hashes,
		Files:       files,
		Hash:        Fingerprint(sha1.Sum(bencode.Encode(v))),
		multi:       multi,
	}, nil
}

func splitPieces(raw string) ([]Fingerprint, error) {
	if len(raw)%20 != 0 {
		return nil, errors.Wrapf(ErrInvalidPiecesLength, "got length %d", len(raw))
	}
	hashes := make([]Fingerprint, len(raw)/20)
	for i := range hashes {
		copy(hashes[i][:], raw[i*20:(i+1)*20])
	}
	return hashes, nil
}

func parseFiles(list []bencode.Value) ([]File, error) {
	files := make([]File, len(list))
	for i, item := range list {
		if item.Kind != bencode.Dict {
			return nil, errors.Wrapf(ErrInvalidFileList, "file %d is not a dictionary", i)
		}
		length, ok := item.Field("length")
		if !ok || length.Kind != bencode.Integer || length.Int < 0 {
			return nil, errors.Wrapf(ErrInvalidFileList, "file %d has a missing or negative length", i)
		}
		pathField, ok := item.Field("path")
		if !ok || pathField.Kind != bencode.List || len(pathField.List) == 0 {
			return nil, errors.Wrapf(ErrInvalidFileList, "file %d has a missing or empty path", i)
		}
		segments := make([]string, len(pathField.List))
		for j, seg := range pathField.List {
			if seg.Kind != bencode.String {
				return nil, errors.Wrapf(ErrInvalidFileList, "file %d has a non-string path segment", i)
			}
			segments[j] = seg.Str
		}
		files[i] = File{Length: length.Int, Path: segments}
	}
	return files, nil
}
