package server

import (
	"bufio"
	"io"
)

// crlfReader expands bare LF to CRLF. Used for RETR in ASCII mode; lines
// that already end in CRLF pass through unchanged.
type crlfReader struct {
	src       *bufio.Reader
	prevCR    bool
	pendingLF bool
}

func newCRLFReader(r io.Reader) *crlfReader {
	return &crlfReader{src: bufio.NewReader(r)}
}

func (r *crlfReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.pendingLF {
			p[n] = '\n'
			n++
			r.pendingLF = false
			r.prevCR = false
			continue
		}
		// Return what we have rather than block on the source.
		if n > 0 && r.src.Buffered() == 0 {
			break
		}

		b, err := r.src.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if b == '\n' && !r.prevCR {
			p[n] = '\r'
			n++
			r.pendingLF = true
			continue
		}
		p[n] = b
		n++
		r.prevCR = b == '\r'
	}
	return n, nil
}

// lfReader folds CRLF to LF. Used for STOR in ASCII mode; a CR not
// followed by LF is kept.
type lfReader struct {
	src    *bufio.Reader
	heldCR bool
}

func newLFReader(r io.Reader) *lfReader {
	return &lfReader{src: bufio.NewReader(r)}
}

func (r *lfReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if n > 0 && r.src.Buffered() == 0 {
			break
		}

		b, err := r.src.ReadByte()
		if err != nil {
			if r.heldCR {
				p[n] = '\r'
				n++
				r.heldCR = false
			}
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if r.heldCR {
			r.heldCR = false
			if b == '\n' {
				p[n] = '\n'
				n++
				continue
			}
			p[n] = '\r'
			n++
			if n == len(p) {
				_ = r.src.UnreadByte()
				break
			}
		}

		if b == '\r' {
			r.heldCR = true
			continue
		}
		p[n] = b
		n++
	}
	return n, nil
}
