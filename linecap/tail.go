package linecap

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultTailSize is the number of lines a Tail keeps when created with a
// size <= 0.
const DefaultTailSize = 20000

// ErrLineEvicted is returned by Tail.Get for an index that was never added
// or has already been overwritten.
var ErrLineEvicted = errors.New("linecap: line not in tail")

// Tail keeps the most recent lines in a fixed number of slots, overwriting
// the oldest once full. Every added line gets an absolute index counting
// from 0, so a caller can keep reading where it left off while older lines
// drop out. It is safe for concurrent use.
type Tail struct {
	mu    sync.Mutex
	lines []string
	head  int   // slot of the oldest line
	count int   // lines held
	first int64 // absolute index of the oldest line
}

var _ Consumer = (*Tail)(nil)

// NewTail returns a Tail holding at most size lines.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = DefaultTailSize
	}
	return &Tail{lines: make([]string, size)}
}

// Line adds line.
func (t *Tail) Line(line string) { t.Add(line) }

// ErrorLine adds line; a Tail does not tell the streams apart.
func (t *Tail) ErrorLine(line string) { t.Add(line) }

// Add appends line and returns its absolute index. The oldest line is
// dropped if the tail is full.
func (t *Tail) Add(line string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == len(t.lines) {
		t.deleteLocked()
	}
	t.lines[(t.head+t.count)%len(t.lines)] = line
	t.count++
	return t.first + int64(t.count) - 1
}

// Delete drops the oldest line. It returns false if the tail is empty.
func (t *Tail) Delete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked()
}

func (t *Tail) deleteLocked() bool {
	if t.count == 0 {
		return false
	}
	t.lines[t.head] = ""
	t.head = (t.head + 1) % len(t.lines)
	t.count--
	t.first++
	return true
}

// Get returns the line with absolute index i.
func (t *Tail) Get(i int64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inRangeLocked(i) {
		return "", errors.Wrapf(ErrLineEvicted, "index %d, holding %d..%d", i, t.first, t.first+int64(t.count)-1)
	}
	return t.lines[(t.head+int(i-t.first))%len(t.lines)], nil
}

// InRange reports whether the line with absolute index i is still held.
func (t *Tail) InRange(i int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inRangeLocked(i)
}

func (t *Tail) inRangeLocked(i int64) bool {
	return i >= t.first && i < t.first+int64(t.count)
}

// First returns the absolute index of the oldest line held. On an empty
// tail it is the index the next line will get.
func (t *Tail) First() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.first
}

// Last returns the absolute index of the newest line held, or First()-1
// when the tail is empty.
func (t *Tail) Last() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.first + int64(t.count) - 1
}

// Len returns the number of lines held.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Cap returns the number of slots.
func (t *Tail) Cap() int {
	return len(t.lines)
}

// Full reports whether the next Add will drop a line.
func (t *Tail) Full() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count == len(t.lines)
}

// Empty reports whether no lines are held.
func (t *Tail) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count == 0
}

// Lines returns a copy of the held lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, t.count)
	for i := range out {
		out[i] = t.lines[(t.head+i)%len(t.lines)]
	}
	return out
}
