package state

// ring is a fixed-capacity FIFO that overwrites its oldest element.
// Not safe for concurrent use; Store guards it.
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) count() int {
	return r.size
}

// oldestFirst returns a copy in insertion order.
func (r *ring[T]) oldestFirst() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// newestFirst returns a copy of at most limit elements, most recent first.
// A limit below 1 returns everything.
func (r *ring[T]) newestFirst(limit int) []T {
	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+r.size-1-i)%len(r.buf)]
	}
	return out
}
