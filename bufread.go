package slava

import (
	"errors"
	"strings"
)

// ErrEOF is returned by BufRead.ReadLine when the underlying stream hits
// EOF before a newline is seen, rather than returning a partial line.
var ErrEOF = errors.New("slava: EOF")

// BufRead is a trivial, byte-at-a-time line reader layered over a
// TcpStream. It is deliberately not optimized — one ReadBytes await per
// byte — since real buffering belongs in a caller's own reader, not here.
type BufRead struct {
	stream *TcpStream
	buf    strings.Builder
}

// NewBufRead wraps stream for line-oriented reads.
func NewBufRead(stream *TcpStream) *BufRead {
	return &BufRead{stream: stream}
}

// ReadLine accumulates bytes until a '\n' is seen (inclusive) and returns
// the accumulated line. It returns ErrEOF if the stream closes first.
func (b *BufRead) ReadLine(aw *Awaiter) (string, error) {
	var one [1]byte
	for {
		n, err := b.stream.ReadBytes(aw, one[:])
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrEOF
		}

		b.buf.WriteByte(one[0])
		if one[0] == '\n' {
			line := b.buf.String()
			b.buf.Reset()
			return line, nil
		}
	}
}
