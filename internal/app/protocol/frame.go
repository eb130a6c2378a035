/*
Package protocol implements the chat wire protocol.

Every logical message is one frame: a 2-byte big-endian unsigned length followed by
that many bytes of UTF-8 text. A frame whose text starts with "/" is a command.
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxFrameSize is the largest payload a single frame can carry.
const MaxFrameSize = math.MaxUint16

// ErrFrameTooLarge is returned when outbound text does not fit into one frame.
var ErrFrameTooLarge = errors.New("protocol: frame payload exceeds 65535 bytes")

// EncodeFrame returns the length-prefixed encoding of text.
func EncodeFrame(text string) ([]byte, error) {
	if len(text) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(text))
	}

	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(len(text)))
	copy(buf[2:], text)

	return buf, nil
}

// WriteFrame writes text as a single frame. The header and payload go out in one Write call.
func WriteFrame(w io.Writer, text string) error {
	buf, err := EncodeFrame(text)
	if err != nil {
		return err
	}

	_, err = w.Write(buf)
	return err
}

// ReadFrame blocks until one complete frame has been read from r.
// A clean EOF before the header returns io.EOF; EOF inside a frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (string, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	size := binary.BigEndian.Uint16(header[:])
	if size == 0 {
		return "", nil
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}

	return string(payload), nil
}
