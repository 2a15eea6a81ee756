package control

// MaxLineLength is the per-connection line buffer size. A line that fills the
// buffer is emitted as if terminated.
const MaxLineLength = 255

// LineParser splits a byte stream into lines terminated by LF, CR or CRLF.
// Empty lines are suppressed. The zero value is ready to use.
type LineParser struct {
	buf    [MaxLineLength]byte
	n      int
	skipLF bool // Previous byte was CR; a following LF belongs to it
}

// Feed consumes data and calls fn for every complete line. The line slice is
// only valid during the call. If fn returns false, Feed stops and returns the
// number of bytes consumed so far; otherwise it returns len(data).
func (p *LineParser) Feed(data []byte, fn func(line []byte) bool) int {
	for i, b := range data {
		if p.skipLF {
			p.skipLF = false
			if b == '\n' {
				continue
			}
		}

		var emit bool
		switch b {
		case '\r':
			p.skipLF = true
			emit = true
		case '\n':
			emit = true
		default:
			p.buf[p.n] = b
			p.n++
			emit = p.n == len(p.buf)
		}

		if emit && p.n > 0 {
			line := p.buf[:p.n]
			p.n = 0
			if !fn(line) {
				return i + 1
			}
		}
	}
	return len(data)
}

// Reset discards any partial line.
func (p *LineParser) Reset() {
	p.n = 0
	p.skipLF = false
}
