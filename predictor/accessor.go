// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: accessor.go — Real and censoring dispatch targets
//
// Purpose:
//   - Two variants behind one capability interface. Real honours wantPrivate;
//     Censoring always returns public data.
//   - Both are defined over the same cell layout, so a flush-by-address routine
//     evicts either one with the same size and the predictor sees no difference
//     until the call target resolves.
//
// Notes:
//   - GetByteDepth threads the call through `depth` further indirect hops on the
//     accessor's own next link before touching data.
// ─────────────────────────────────────────────────────────────────────────────

package predictor

import (
	"unsafe"

	"specleak/constants"
)

// Kind tags an accessor variant.
type Kind uint8

const (
	KindReal Kind = iota
	KindCensoring
)

func (k Kind) String() string {
	if k == KindCensoring {
		return "censoring"
	}
	return "real"
}

// Accessor reads one byte from either the public or the private range.
type Accessor interface {
	GetByte(index int, wantPrivate bool) byte
	GetByteDepth(index int, wantPrivate bool, depth int) byte
}

// cell is the layout shared by both variants, padded to one cache line.
type cell struct {
	data *Data    // 8B
	next Accessor // 16B - chain link, self by default
	kind Kind     // 1B
	_    [constants.CacheLineSize - 25]byte
}

// cellSize is the flush extent of any accessor.
const cellSize = unsafe.Sizeof(cell{})

// RealAccessor returns whatever range it is asked for.
type RealAccessor cell

// CensoringAccessor returns public data no matter what it is asked for.
type CensoringAccessor cell

// NewRealAccessor returns a real accessor linked to itself.
func NewRealAccessor(d *Data) *RealAccessor {
	a := &RealAccessor{data: d, kind: KindReal}
	a.next = a
	return a
}

// NewCensoringAccessor returns a censoring accessor linked to itself.
func NewCensoringAccessor(d *Data) *CensoringAccessor {
	a := &CensoringAccessor{data: d, kind: KindCensoring}
	a.next = a
	return a
}

// GetByte reads index from the range wantPrivate selects.
//
//go:noinline
func (a *RealAccessor) GetByte(index int, wantPrivate bool) byte {
	return a.data.load(index, wantPrivate)
}

// GetByteDepth hops depth times through next, then reads like GetByte.
//
//go:noinline
func (a *RealAccessor) GetByteDepth(index int, wantPrivate bool, depth int) byte {
	if depth == 0 {
		return a.data.load(index, wantPrivate)
	}
	return a.next.GetByteDepth(index, wantPrivate, depth-1)
}

// SetNext relinks the chain.
func (a *RealAccessor) SetNext(next Accessor) { a.next = next }

// Kind returns KindReal.
func (a *RealAccessor) Kind() Kind { return a.kind }

// GetByte ignores wantPrivate and reads public data.
//
//go:noinline
func (a *CensoringAccessor) GetByte(index int, _ bool) byte {
	return a.data.load(index, false)
}

// GetByteDepth hops depth times with wantPrivate cleared, then reads public data.
//
//go:noinline
func (a *CensoringAccessor) GetByteDepth(index int, _ bool, depth int) byte {
	if depth == 0 {
		return a.data.load(index, false)
	}
	return a.next.GetByteDepth(index, false, depth-1)
}

// SetNext relinks the chain.
func (a *CensoringAccessor) SetNext(next Accessor) { a.next = next }

// Kind returns KindCensoring.
func (a *CensoringAccessor) Kind() Kind { return a.kind }
