package bencode

import (
	"bytes"
	"testing"
)

func TestEncodeString(t *testing.T) {
	result := Encode(Bytes("spam"))
	expected := []byte("4:spam")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestEncodeEmptyString(t *testing.T) {
	result := Encode(Bytes(""))
	expected := []byte("0:")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestEncodeInt(t *testing.T) {
	result := Encode(Int64(42))
	expected := []byte("i42e")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestEncodeIntZero(t *testing.T) {
	result := Encode(Int64(0))
	expected := []byte("i0e")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestEncodeIntNegative(t *testing.T) {
	result := Encode(Int64(-354))
	expected := []byte("i-354e")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestEncodeList(t *testing.T) {
	result := Encode(List2(Bytes("spam"), Bytes("eggs")))
	expected := []byte("l4:spam4:eggse")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestEncodeDictSorted(t *testing.T) {
	// Keys must be sorted lexicographically regardless of map iteration order.
	v := DictOf(map[string]Value{
		"z": Bytes("last"),
		"a": Bytes("first"),
		"m": Bytes("middle"),
	})
	result := Encode(v)
	expected := []byte("d1:a5:first1:m6:middle1:z4:laste")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

// TestEncodeFromSpec is the literal scenario #3 from the spec: Encode
// Dict{"first" -> 3546, "second" -> "go here dgf"}.
func TestEncodeFromSpec(t *testing.T) {
	v := DictOf(map[string]Value{
		"first":  Int64(3546),
		"second": Bytes("go here dgf"),
	})
	result := Encode(v)
	expected := []byte("d5:firsti3546e6:second11:go here dgfe")
	if !bytes.Equal(result, expected) {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestDecodeEmptyString(t *testing.T) {
	v, err := Decode([]byte("0:"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != String || v.Str != "" {
		t.Errorf("expected empty string, got %+v", v)
	}
}

func TestDecodeIntZero(t *testing.T) {
	v, err := Decode([]byte("i0e"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != Integer || v.Int != 0 {
		t.Errorf("expected 0, got %+v", v)
	}
}

func TestDecodeIntNegative(t *testing.T) {
	v, err := Decode([]byte("i-354e"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != Integer || v.Int != -354 {
		t.Errorf("expected -354, got %+v", v)
	}
}

// TestDecodeScenario1 is end-to-end scenario #1 from the spec.
func TestDecodeScenario1(t *testing.T) {
	input := []byte("d3:bar4:spam3:fooi42ee")
	v, err := Decode(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != Dict {
		t.Fatalf("expected a dictionary, got %+v", v)
	}
	if bar, ok := v.Field("bar"); !ok || bar.Str != "spam" {
		t.Errorf(`expected "bar" -> "spam", got %+v (ok=%v)`, bar, ok)
	}
	if foo, ok := v.Field("foo"); !ok || foo.Int != 42 {
		t.Errorf(`expected "foo" -> 42, got %+v (ok=%v)`, foo, ok)
	}
	if reencoded := Encode(v); !bytes.Equal(reencoded, input) {
		t.Errorf("re-encode mismatch: expected %s, got %s", input, reencoded)
	}
}

// TestDecodeScenario2 is end-to-end scenario #2 from the spec.
func TestDecodeScenario2(t *testing.T) {
	v, err := Decode([]byte("lli43e5:abobaed3:bari52eee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != List || len(v.List) != 2 {
		t.Fatalf("expected a 2-element list, got %+v", v)
	}
	inner := v.List[0]
	if inner.Kind != List || len(inner.List) != 2 || inner.List[0].Int != 43 || inner.List[1].Str != "aboba" {
		t.Errorf("unexpected inner list: %+v", inner)
	}
	dict := v.List[1]
	if bar, ok := dict.Field("bar"); !ok || bar.Int != 52 {
		t.Errorf(`expected "bar" -> 52, got %+v (ok=%v)`, bar, ok)
	}
}

func TestRoundTripDecodeThenEncode(t *testing.T) {
	cases := [][]byte{
		[]byte("d3:bar4:spam3:fooi42ee"),
		[]byte("lli43e5:abobaed3:bari52eee"),
		[]byte("d5:firsti3546e6:second11:go here dgfe"),
		[]byte("i0e"),
		[]byte("0:"),
	}
	for _, c := range cases {
		v, err := Decode(c)
		if err != nil {
			t.Fatalf("decode(%s) failed: %v", c, err)
		}
		re := Encode(v)
		if !bytes.Equal(re, c) {
			t.Errorf("round trip mismatch for %s: got %s", c, re)
		}
	}
}

func TestDecodeUnsortedDictStillRoundTripsSorted(t *testing.T) {
	// A decoder MAY accept unsorted keys on input; the encoder must
	// always emit sorted output.
	v, err := Decode([]byte("d4:spam4:eggs3:bar3:fooe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []byte("d3:bar3:foo4:spam4:eggse")
	if got := Encode(v); !bytes.Equal(got, expected) {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestDecodeTrailingBytesAllowedAtTopLevel(t *testing.T) {
	if _, err := Decode([]byte("i1etrailing")); err != nil {
		t.Errorf("trailing bytes after a complete value should not error, got %v", err)
	}
}

func TestDecodeInvalidFormat(t *testing.T) {
	_, err := Decode([]byte("x"))
	var fe *FormatError
	if err == nil {
		t.Fatal("expected an error")
	}
	if !bytesAsFormatError(err, &fe) {
		t.Errorf("expected a *FormatError, got %T: %v", err, err)
	}
}

func bytesAsFormatError(err error, target **FormatError) bool {
	fe, ok := err.(*FormatError)
	if !ok {
		return false
	}
	*target = fe
	return true
}

func TestDecodeUnexpectedEOF(t *testing.T) {
	if _, err := Decode([]byte("5:ab")); err == nil {
		t.Error("expected an error for a truncated string")
	}
	if _, err := Decode([]byte("i42")); err == nil {
		t.Error("expected an error for an unterminated integer")
	}
}

func TestDictNonStringKeyIsError(t *testing.T) {
	if _, err := Decode([]byte("di1ei2ee")); err == nil {
		t.Error("expected an error for a non-string dictionary key")
	}
}

func TestDecodePrefixConsumedBytesAcrossBufferBoundary(t *testing.T) {
	// Pad the value well past bufio's default 4096-byte buffer so
	// DecodePrefix is forced to account for bytes the underlying
	// reader hasn't handed to the buffer yet, not just what's left
	// sitting in the buffer.
	padding := make([]byte, 9000)
	for i := range padding {
		padding[i] = 'x'
	}
	value := append([]byte("9000:"), padding...)
	trailer := []byte("i7e")
	data := append(append([]byte{}, value...), trailer...)

	v, n, err := DecodePrefix(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != String || len(v.Str) != 9000 {
		t.Fatalf("expected a 9000-byte string, got kind %v len %d", v.Kind, len(v.Str))
	}
	if n != len(value) {
		t.Errorf("expected %d consumed bytes, got %d", len(value), n)
	}
	rest, _, err := DecodePrefix(data[n:])
	if err != nil {
		t.Fatalf("unexpected error decoding trailer: %v", err)
	}
	if rest.Kind != Integer || rest.Int != 7 {
		t.Errorf("expected the trailer i7e to decode separately, got %+v", rest)
	}
}

func TestFieldOnNonDict(t *testing.T) {
	v := Int64(5)
	if _, ok := v.Field("x"); ok {
		t.Error("Field should report false on a non-dictionary value")
	}
}
