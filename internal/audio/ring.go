package audio

// Ring retains the most recent N buffers together with their loudness.
// Slots are written in tick order; slot i holds tick i mod N.
type Ring struct {
	buffers  [][]int16
	loudness []Loudness
}

// NewRing allocates a ring of n slots holding bufLen samples each.
func NewRing(n, bufLen int) *Ring {
	r := &Ring{
		buffers:  make([][]int16, n),
		loudness: make([]Loudness, n),
	}
	for i := range r.buffers {
		r.buffers[i] = make([]int16, bufLen)
	}
	return r
}

// Len returns the ring capacity.
func (r *Ring) Len() int {
	return len(r.buffers)
}

// Slot returns the index used for the given tick.
func (r *Ring) Slot(tick int) int {
	return tick % len(r.buffers)
}

// Buffer returns the sample storage for a slot. Capture reads go directly into it.
func (r *Ring) Buffer(slot int) []int16 {
	return r.buffers[slot]
}

// Loudness returns the stored loudness for a slot.
func (r *Ring) Loudness(slot int) Loudness {
	return r.loudness[slot]
}

// Store records the loudness computed for a slot's buffer.
func (r *Ring) Store(slot int, l Loudness) {
	r.loudness[slot] = l
}

// LoudCount returns how many slots have an RMS strictly above threshold.
func (r *Ring) LoudCount(threshold float64) int {
	n := 0
	for _, l := range r.loudness {
		if l.RMS > threshold {
			n++
		}
	}
	return n
}

// Preroll calls fn for slots cursor+2 through cursor+N-1 (mod N), oldest first.
// The slot at cursor holds the live buffer, which the caller encodes itself.
func (r *Ring) Preroll(cursor int, fn func(samples []int16) error) error {
	n := len(r.buffers)
	for i := cursor + 2; i < cursor+n; i++ {
		if err := fn(r.buffers[i%n]); err != nil {
			return err
		}
	}
	return nil
}

// Reset zeroes every slot.
func (r *Ring) Reset() {
	for i := range r.buffers {
		clear(r.buffers[i])
		r.loudness[i] = Loudness{}
	}
}
