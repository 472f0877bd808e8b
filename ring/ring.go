// ring.go
//
// Lock-free single-producer/single-consumer ring of leak records. The leak
// thread pushes one Record per finished offset; a consumer on another thread
// prints and journals them, so no write syscall or SQLite call ever runs on
// the measuring core.  Producer and consumer fields sit on separate cache
// lines, and each slot carries a sequence number so Push/Pop stay wait-free.

package ring

import (
	"sync/atomic"

	"specleak/leak"
)

// Record is one finished offset as the consumer sees it.
type Record struct {
	Depth  int
	Failed bool // Result holds the best guess of a gave-up offset
	Result leak.Result
}

// slot couples a record with its sequence stamp.
type slot struct {
	seq uint64 // position in the sequence space
	rec Record
}

// Ring is a fixed-capacity circular buffer dedicated to one producer and
// one consumer.
type Ring struct {
	_    [64]byte // consumer head isolated on its own cache-line
	head uint64
	//lint:ignore U1000 padding to keep head & tail on different cache-lines
	_pad1 [56]byte
	tail  uint64
	//lint:ignore U1000 padding to keep hot fields from colliding with metadata
	_pad2 [56]byte
	mask  uint64
	buf   []slot
}

// New allocates a ring whose size must be a power-of-two; otherwise it
// panics so that the bit-masking arithmetic stays valid.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be >0 and a power of two")
	}
	r := &Ring{
		mask: uint64(size - 1),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// Push enqueues rec, returning false if the buffer is full.
//
//go:nosplit
func (r *Ring) Push(rec *Record) bool {
	t := r.tail
	s := &r.buf[t&r.mask]
	if atomic.LoadUint64(&s.seq) != t {
		return false // consumer has not yet reclaimed the slot
	}
	s.rec = *rec
	atomic.StoreUint64(&s.seq, t+1)
	r.tail = t + 1
	return true
}

// PushWait spins until rec fits.
func (r *Ring) PushWait(rec *Record) {
	for !r.Push(rec) {
		cpuRelax()
	}
}

// Pop dequeues one record into dst, reporting false if the buffer is empty.
//
//go:nosplit
func (r *Ring) Pop(dst *Record) bool {
	h := r.head
	s := &r.buf[h&r.mask]
	if atomic.LoadUint64(&s.seq) != h+1 {
		return false // producer has not yet published to the slot
	}
	*dst = s.rec
	atomic.StoreUint64(&s.seq, h+uint64(len(r.buf)))
	r.head = h + 1
	return true
}
