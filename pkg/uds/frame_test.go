package uds

import (
	"bytes"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = WriteFrame(a, []byte(`{"op":"restore","userId":"u1"}`))
		_ = WriteFrame(a, []byte(`second`))
	}()

	reader := NewFrameReader(b)
	first, err := reader.Read()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(first, []byte(`{"op":"restore","userId":"u1"}`)) {
		t.Fatalf("first frame = %q", first)
	}
	second, err := reader.Read()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if string(second) != "second" {
		t.Fatalf("second frame = %q", second)
	}
}

func TestFrameLargerThanBuffer(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	payload := bytes.Repeat([]byte{'x'}, 10_000)
	go func() {
		_ = WriteFrame(a, payload)
	}()

	frame, err := NewFrameReader(b).Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(frame, payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), len(payload))
	}
}

func TestNilFrameReader(t *testing.T) {
	var fr *FrameReader
	if _, err := fr.Read(); err == nil {
		t.Fatal("expected error from nil reader")
	}
}
