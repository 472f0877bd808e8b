package hw

import (
	"testing"
	"unsafe"
)

// TestPrimitivesDoNotFault runs every primitive on a live buffer. It only
// checks that nothing traps; timing values are hardware dependent.
func TestPrimitivesDoNotFault(t *testing.T) {
	buf := make([]byte, 4096)
	base := uintptr(unsafe.Pointer(&buf[0]))

	var b Backend
	b.FlushLine(base)
	b.Fence()
	b.Touch(base + 64)
	_ = b.ReadLatency(base + 128)
	for p := base; p < base+uintptr(len(buf)); p += 64 {
		b.FlushLine(p)
	}
	b.Fence()
	if buf[0] != 0 {
		t.Fatal("flush must not modify memory")
	}
}

// TestWarmReadFasterThanCold is a smoke test of the channel itself. Single
// samples are noisy, so it compares medians over many rounds.
func TestWarmReadFasterThanCold(t *testing.T) {
	if !Supported() {
		t.Skip("no cache primitives on this target")
	}
	buf := make([]byte, 4096)
	addr := uintptr(unsafe.Pointer(&buf[2048]))
	var b Backend

	const rounds = 201
	warm := make([]uint64, rounds)
	cold := make([]uint64, rounds)
	for i := 0; i < rounds; i++ {
		b.Touch(addr)
		b.Fence()
		warm[i] = b.ReadLatency(addr)
		b.FlushLine(addr)
		b.Fence()
		cold[i] = b.ReadLatency(addr)
	}
	if median(warm) >= median(cold) {
		t.Skipf("no timing separation (warm %d, cold %d); virtualised TSC?", median(warm), median(cold))
	}
}

func TestPinNegativeIsNoop(t *testing.T) {
	if err := Pin(-1); err != nil {
		t.Fatalf("Pin(-1) = %v, want nil", err)
	}
}

func median(xs []uint64) uint64 {
	s := append([]uint64(nil), xs...)
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
	return s[len(s)/2]
}
