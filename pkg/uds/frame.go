package uds

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
)

// ErrFrameTooLarge is returned when a line exceeds the frame limit.
var ErrFrameTooLarge = errors.New("uds: frame too large")

// maxFrameSize bounds a single newline-delimited frame.
const maxFrameSize = 1 << 20

// FrameReader reads newline-delimited frames from a connection.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps a connection for line-framed reads.
func NewFrameReader(conn net.Conn) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(conn, 4096)}
}

// Read returns the next frame without the trailing newline.
func (fr *FrameReader) Read() ([]byte, error) {
	if fr == nil || fr.r == nil {
		return nil, io.EOF
	}
	var buf bytes.Buffer
	for {
		chunk, isPrefix, err := fr.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if buf.Len()+len(chunk) > maxFrameSize {
			return nil, ErrFrameTooLarge
		}
		buf.Write(chunk)
		if !isPrefix {
			return buf.Bytes(), nil
		}
	}
}

// WriteFrame writes one frame followed by a newline.
func WriteFrame(conn net.Conn, frame []byte) error {
	if _, err := conn.Write(frame); err != nil {
		return err
	}
	_, err := conn.Write([]byte{'\n'})
	return err
}
