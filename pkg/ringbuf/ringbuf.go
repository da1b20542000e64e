// Package ringbuf provides a bounded, append-only store of output chunks.
//
// A Buffer keeps chunks in arrival order and drops the oldest ones once the
// total size exceeds its ceiling. It never drops the newest chunk, so a single
// push larger than the ceiling is kept whole.
package ringbuf

const (
	// DefaultMaxBytes is the ceiling used for per-session output history.
	DefaultMaxBytes = 10 << 20

	// LightMaxBytes is the ceiling for lightweight buffers.
	LightMaxBytes = 2 << 20

	// compactThreshold is the minimum number of evicted slots before the
	// backing slice is compacted.
	compactThreshold = 64
)

// Buffer is a bounded chunk buffer. It is not safe for concurrent use; the
// owner serializes access.
type Buffer struct {
	chunks [][]byte
	head   int // index of the oldest retained chunk
	size   int
	max    int
}

// New creates a Buffer that holds at most maxBytes (plus the newest chunk).
// A non-positive maxBytes selects DefaultMaxBytes.
func New(maxBytes int) *Buffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Buffer{max: maxBytes}
}

// Push appends a copy of chunk and evicts the oldest chunks while the buffer
// is over its ceiling, keeping at least one chunk.
func (b *Buffer) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	b.chunks = append(b.chunks, c)
	b.size += len(c)

	for b.size > b.max && b.Len() > 1 {
		b.size -= len(b.chunks[b.head])
		b.chunks[b.head] = nil
		b.head++
	}

	if b.head >= compactThreshold && b.head*2 >= len(b.chunks) {
		live := make([][]byte, len(b.chunks)-b.head, cap(b.chunks)-b.head)
		copy(live, b.chunks[b.head:])
		b.chunks = live
		b.head = 0
	}
}

// Size returns the number of bytes currently held.
func (b *Buffer) Size() int {
	return b.size
}

// Len returns the number of chunks currently held.
func (b *Buffer) Len() int {
	return len(b.chunks) - b.head
}

// MaxBytes returns the configured ceiling.
func (b *Buffer) MaxBytes() int {
	return b.max
}

// LastBytes returns the final n bytes of the buffer. Only the newest chunks
// needed to cover n are copied.
func (b *Buffer) LastBytes(n int) []byte {
	if n <= 0 || b.size == 0 {
		return []byte{}
	}
	if n >= b.size {
		return b.Bytes()
	}

	start := len(b.chunks)
	covered := 0
	for start > b.head && covered < n {
		start--
		covered += len(b.chunks[start])
	}

	out := make([]byte, 0, covered)
	for _, c := range b.chunks[start:] {
		out = append(out, c...)
	}
	return out[len(out)-n:]
}

// Bytes returns a copy of the whole buffer.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks[b.head:] {
		out = append(out, c...)
	}
	return out
}

// String returns the whole buffer as a string.
func (b *Buffer) String() string {
	return string(b.Bytes())
}
