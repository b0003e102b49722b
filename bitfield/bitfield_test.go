package bitfield

import "testing"

func TestGetSet(t *testing.T) {
	bf := New(16)
	if bf.Get(0) {
		t.Error("expected piece 0 to be clear initially")
	}
	bf.Set(0, true)
	if !bf.Get(0) {
		t.Error("expected piece 0 to be set")
	}
	bf.Set(7, true)
	if !bf.Get(7) {
		t.Error("expected piece 7 to be set")
	}
	bf.Set(0, false)
	if bf.Get(0) {
		t.Error("expected piece 0 to be cleared again")
	}
}

func TestBitOrderWithinByte(t *testing.T) {
	// piece 0 is bit 7 (high order) of byte 0.
	bf := New(8)
	bf.Set(0, true)
	if bf[0] != 0b1000_0000 {
		t.Errorf("expected byte 0 to be 0b10000000, got %08b", bf[0])
	}
	bf2 := New(8)
	bf2.Set(7, true)
	if bf2[0] != 0b0000_0001 {
		t.Errorf("expected byte 0 to be 0b00000001, got %08b", bf2[0])
	}
}

func TestSecondByte(t *testing.T) {
	bf := New(16)
	bf.Set(8, true)
	if !bf.Get(8) || bf.Get(0) {
		t.Errorf("expected only piece 8 set, got %08b %08b", bf[0], bf[1])
	}
}

func TestOutOfRangePanics(t *testing.T) {
	bf := New(8)
	defer func() {
		if recover() == nil {
			t.Error("expected Get to panic on an out-of-range index")
		}
	}()
	bf.Get(100)
}

func TestIterate(t *testing.T) {
	bf := New(10)
	bf.Set(2, true)
	bf.Set(9, true)
	var have []int
	bf.Iterate(10, func(index int, v bool) bool {
		if v {
			have = append(have, index)
		}
		return true
	})
	if len(have) != 2 || have[0] != 2 || have[1] != 9 {
		t.Errorf("expected pieces [2 9], got %v", have)
	}
}

func TestIterateStopsEarly(t *testing.T) {
	bf := New(10)
	bf.Set(0, true)
	bf.Set(1, true)
	count := 0
	bf.Iterate(10, func(index int, v bool) bool {
		count++
		return index < 0 // stop immediately after the first call
	})
	if count != 1 {
		t.Errorf("expected iteration to stop after 1 call, got %d", count)
	}
}
