package irc

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxLineLen bounds a single inbound line, delimiter included.
// Twitch caps tagged lines well below this; the headroom is for safety,
// not spec compliance.
const DefaultMaxLineLen = 8192

// FramingError reports a single unterminated line that exceeded the
// configured maximum. It is connection-fatal: the reader's buffer state is
// unrecoverable and the caller must tear the transport down.
type FramingError struct {
	Limit int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("irc: line exceeds %d bytes", e.Limit)
}

// LineReader splits a byte stream into protocol lines, tolerating lines
// split across read boundaries. Lines are delimited by LF with an optional
// preceding CR, both stripped from the result.
type LineReader struct {
	r   *bufio.Reader
	max int
	bad bool
}

// NewLineReader wraps r. max <= 0 selects DefaultMaxLineLen.
func NewLineReader(r io.Reader, max int) *LineReader {
	if max <= 0 {
		max = DefaultMaxLineLen
	}
	bufSize := 4096
	if bufSize > max {
		bufSize = max
	}
	return &LineReader{r: bufio.NewReaderSize(r, bufSize), max: max}
}

// ReadLine returns the next complete line. After a FramingError the reader
// is poisoned and every subsequent call fails the same way; no partial line
// is ever returned.
func (lr *LineReader) ReadLine() (string, error) {
	if lr.bad {
		return "", &FramingError{Limit: lr.max}
	}
	var buf []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > lr.max {
			lr.bad = true
			return "", &FramingError{Limit: lr.max}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return "", err
		}
		break
	}
	n := len(buf) - 1 // strip LF
	if n > 0 && buf[n-1] == '\r' {
		n--
	}
	return string(buf[:n]), nil
}

// LineWriter frames outbound lines, appending the CRLF delimiter and
// flushing each line to the underlying writer immediately.
type LineWriter struct {
	w *bufio.Writer
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

// WriteLine frames and sends one line. Embedded CR or LF would let a caller
// smuggle extra commands onto the wire, so they are rejected outright.
func (lw *LineWriter) WriteLine(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("irc: line contains embedded delimiter")
	}
	if _, err := lw.w.WriteString(line); err != nil {
		return err
	}
	if _, err := lw.w.WriteString("\r\n"); err != nil {
		return err
	}
	return lw.w.Flush()
}
