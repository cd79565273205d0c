// Package ipc implements the length-prefixed framing protocol used on the
// pipes between a monitor and its child (fd 3 and fd 4 of the child, in
// both per-task-fork and prefork mode): a 4-byte little-endian length
// prefix followed by that many payload bytes.
package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame to guard against a corrupt length
// prefix causing an unbounded allocation.
const MaxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes one length-prefixed frame to w. Partial writes are
// looped rather than assumed atomic, to tolerate large payloads on a pipe.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := writeAll(w, header[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := writeAll(w, payload); err != nil {
		return fmt.Errorf("ipc: write frame payload: %w", err)
	}
	return nil
}

func writeAll(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrame reads one length-prefixed frame from r. It returns io.EOF only
// when the stream ends cleanly before any bytes of a new frame are read
// (the prefork child's "pipe closed" exit condition); a truncated header
// returns io.ErrUnexpectedEOF, and a truncated payload returns an error
// wrapping io.ErrUnexpectedEOF.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, err // may be io.EOF
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("ipc: frame size %d exceeds maximum %d", length, MaxFrameSize)
	}
	if length == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("ipc: read frame payload: %w", err)
	}
	return payload, nil
}
