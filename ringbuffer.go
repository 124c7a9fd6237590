package ringchan

// ringStore is a fixed-capacity byte ring. It is not safe for concurrent
// use; Channel guards it with its mutex.
type ringStore struct {
	data  []byte
	start int
	used  int
}

func newRingStore(capacity int) *ringStore {
	return &ringStore{data: make([]byte, capacity)}
}

func (r *ringStore) capacity() int { return len(r.data) }

func (r *ringStore) len() int { return r.used }

func (r *ringStore) free() int { return len(r.data) - r.used }

func (r *ringStore) empty() bool { return r.used == 0 }

func (r *ringStore) full() bool { return r.used == len(r.data) }

// end is the insertion point for the next write.
func (r *ringStore) end() int {
	return (r.start + r.used) % len(r.data)
}

// copyIn appends as much of src as fits and returns the number of bytes
// admitted.
func (r *ringStore) copyIn(src []byte) int {
	toWrite := min(r.free(), len(src))
	if toWrite == 0 {
		return 0
	}

	end := r.end()
	firstChunk := min(toWrite, len(r.data)-end)
	copy(r.data[end:end+firstChunk], src[:firstChunk])
	if firstChunk < toWrite {
		copy(r.data[:toWrite-firstChunk], src[firstChunk:toWrite])
	}

	r.used += toWrite
	return toWrite
}

// copyOut moves up to len(dst) of the oldest bytes into dst and returns the
// number of bytes removed.
func (r *ringStore) copyOut(dst []byte) int {
	toRead := min(r.used, len(dst))
	if toRead == 0 {
		return 0
	}

	firstChunk := min(toRead, len(r.data)-r.start)
	copy(dst[:firstChunk], r.data[r.start:r.start+firstChunk])
	if firstChunk < toRead {
		copy(dst[firstChunk:toRead], r.data[:toRead-firstChunk])
	}

	r.start = (r.start + toRead) % len(r.data)
	r.used -= toRead
	return toRead
}
