package ipc

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte("x"), 70000), // bigger than a typical pipe buffer
	}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for i, want := range payloads {
		got, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch: got %d bytes, want %d bytes", i, len(got), len(want))
		}
	}
}

func TestReadFrameEOFOnEmptyStream(t *testing.T) {
	r := bufio.NewReader(&bytes.Buffer{})
	_, err := ReadFrame(r)
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadFrameTruncatedHeaderIsUnexpectedEOF(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{1, 2}))
	_, err := ReadFrame(r)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// A length prefix claiming far more than MaxFrameSize.
	if err := WriteFrame(&buf, make([]byte, 0)); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	buf.Reset()
	buf.Write([]byte{0xff, 0xff, 0xff, 0x7f}) // huge length, no payload follows
	r := bufio.NewReader(&buf)
	_, err := ReadFrame(r)
	if err == nil {
		t.Fatal("expected an error for an oversized frame length")
	}
}
