package wfs

import "testing"

func TestAllocateBitFirstFit(t *testing.T) {
	bitmap := make([]byte, 4) // 32 bits

	idx, ok := allocateBit(bitmap, 32)
	if !ok || idx != 0 {
		t.Fatalf("first allocation: got idx=%d ok=%v, want idx=0 ok=true", idx, ok)
	}
	if !testBit(bitmap, 0) {
		t.Fatal("bit 0 not set after allocation")
	}

	idx, ok = allocateBit(bitmap, 32)
	if !ok || idx != 1 {
		t.Fatalf("second allocation: got idx=%d ok=%v, want idx=1", idx, ok)
	}
}

func TestAllocateBitReusesCleared(t *testing.T) {
	bitmap := make([]byte, 4)
	for i := 0; i < 5; i++ {
		if _, ok := allocateBit(bitmap, 32); !ok {
			t.Fatalf("allocation %d unexpectedly failed", i)
		}
	}
	clearBit(bitmap, 2)

	idx, ok := allocateBit(bitmap, 32)
	if !ok || idx != 2 {
		t.Fatalf("got idx=%d ok=%v, want the freed idx=2", idx, ok)
	}
}

func TestAllocateBitExhausted(t *testing.T) {
	bitmap := make([]byte, 4)
	for i := 0; i < 32; i++ {
		if _, ok := allocateBit(bitmap, 32); !ok {
			t.Fatalf("allocation %d unexpectedly failed before exhaustion", i)
		}
	}
	if _, ok := allocateBit(bitmap, 32); ok {
		t.Fatal("allocateBit succeeded on a full bitmap")
	}
}

func TestSetClearTestBitAcrossWords(t *testing.T) {
	bitmap := make([]byte, 8) // 64 bits, two words
	setBit(bitmap, 33)
	if !testBit(bitmap, 33) {
		t.Fatal("bit 33 (second word) not observed set")
	}
	if testBit(bitmap, 32) || testBit(bitmap, 34) {
		t.Fatal("setBit(33) affected a neighboring bit")
	}
	clearBit(bitmap, 33)
	if testBit(bitmap, 33) {
		t.Fatal("bit 33 still set after clearBit")
	}
}
