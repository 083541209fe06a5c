package source

// stream.go cleans raw CSV bytes before encoding/csv sees them.
//
// Exports written by spreadsheet tools often start with a UTF-8 BOM and may
// carry stray Latin-1 bytes. Both are handled on the fly in constant memory:
// the BOM is dropped and each invalid byte becomes '?'.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a leading UTF-8 BOM, if any.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'.
// Raw bytes are read into an internal buffer; a multi-byte rune split across
// reads is held back until it completes, so any destination size works.
type utf8Sanitizer struct {
	r       io.Reader
	chunk   []byte
	raw     []byte
	pending []byte
	out     []byte
	err     error
}

const sanitizerChunk = 4096

// maxEmptyReads bounds consecutive (0, nil) reads from the source.
const maxEmptyReads = 100

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		r:       r,
		chunk:   make([]byte, sanitizerChunk),
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for empty := 0; len(s.out) == 0; empty++ {
		if s.err != nil {
			return 0, s.err
		}
		if empty >= maxEmptyReads {
			return 0, io.ErrNoProgress
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads one chunk from the source and queues its sanitized bytes.
func (s *utf8Sanitizer) fill() {
	n, err := s.r.Read(s.chunk)
	s.raw = append(append(s.raw[:0], s.pending...), s.chunk[:n]...)
	s.pending = s.pending[:0]
	if err != nil {
		s.err = err
	}
	s.out = s.sanitize(s.out[:0], s.raw, err == io.EOF)
}

// sanitize appends the clean form of data to dst. Without atEOF an
// incomplete trailing rune is moved to pending instead.
func (s *utf8Sanitizer) sanitize(dst, data []byte, atEOF bool) []byte {
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			dst = append(dst, data[i])
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(data[i:]) {
			s.pending = append(s.pending, data[i:]...)
			return dst
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, '?')
			i++
			continue
		}
		dst = append(dst, data[i:i+size]...)
		i += size
	}
	return dst
}

// countingReader tracks the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// wrapStream applies BOM skipping, UTF-8 sanitizing and byte counting, in that order.
func wrapStream(r io.Reader) *countingReader {
	return &countingReader{r: newUTF8Sanitizer(skipBOM(r))}
}
