package history

import "sync"

const DefaultCapacity = 50

// Buffer is a bounded FIFO of finalized utterances. When full, the oldest
// entry is evicted.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	entries []string
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity, entries: make([]string, 0, capacity)}
}

func (b *Buffer) Push(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == b.cap {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:b.cap-1]
	}
	b.entries = append(b.entries, text)
}

// Recent returns up to n of the newest entries, oldest first.
func (b *Buffer) Recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]string, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

func (b *Buffer) All() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Buffer) Cap() int {
	return b.cap
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
}
