package chunk

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/thermoctl/internal/protocol"
)

const (
	// MaxPayload is the number of frame bytes carried by one chunk.
	MaxPayload = 16
	// MaxFrame bounds a whole request or response frame.
	MaxFrame = 512

	FlagBegin byte = 0x40
	FlagEnd   byte = 0x80
	IDMask    byte = 0x3F

	// DefaultPollWait is the pause between empty reads while a response is pending.
	DefaultPollWait = 200 * time.Millisecond
)

var (
	ErrEmptyFrame       = errors.New("chunk: empty frame")
	ErrFrameTooLarge    = errors.New("chunk: frame too large")
	ErrMissingBegin     = errors.New("chunk: expecting frame begin")
	ErrSequenceMismatch = errors.New("chunk: unexpected sequence id")
	ErrIncomplete       = errors.New("chunk: frame incomplete")
	ErrChunkTooLarge    = errors.New("chunk: payload too large")
)

// Header packs a sequence id and flags into one header byte.
func Header(id byte, begin, end bool) byte {
	h := id & IDMask
	if begin {
		h |= FlagBegin
	}
	if end {
		h |= FlagEnd
	}
	return h
}

// Encode splits frame into MaxPayload-sized chunks sharing sequence id.
func Encode(id byte, frame []byte) ([][]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(frame) > MaxFrame {
		return nil, ErrFrameTooLarge
	}
	out := make([][]byte, 0, (len(frame)+MaxPayload-1)/MaxPayload)
	for offset := 0; offset < len(frame); {
		n := min(len(frame)-offset, MaxPayload)
		c := make([]byte, 1+n)
		c[0] = Header(id, offset == 0, offset+n == len(frame))
		copy(c[1:], frame[offset:offset+n])
		out = append(out, c)
		offset += n
	}
	return out, nil
}

// Reassembler accumulates received chunks of one frame.
type Reassembler struct {
	id      byte
	started bool
	done    bool
	buf     []byte
}

// NewReassembler expects every chunk to carry sequence id.
func NewReassembler(id byte) *Reassembler {
	return &Reassembler{id: id & IDMask}
}

// Push adds one received chunk. An empty chunk is not an error; the caller polls again.
func (r *Reassembler) Push(c []byte) (bool, error) {
	if r.done {
		return true, nil
	}
	if len(c) == 0 {
		return false, nil
	}
	h := c[0]
	if h&IDMask != r.id {
		r.reset()
		return false, protocol.Desync(ErrSequenceMismatch, "invalid response, got id %d want %d", h&IDMask, r.id)
	}
	if !r.started && h&FlagBegin == 0 {
		r.reset()
		return false, protocol.Desync(ErrMissingBegin, "invalid response")
	}
	if len(c)-1 > MaxPayload {
		r.reset()
		return false, protocol.Desync(ErrChunkTooLarge, "chunk carries %d bytes", len(c)-1)
	}
	if len(r.buf)+len(c)-1 > MaxFrame {
		r.reset()
		return false, protocol.Desync(ErrFrameTooLarge, "frame exceeds %d bytes", MaxFrame)
	}
	r.started = true
	r.buf = append(r.buf, c[1:]...)
	if h&FlagEnd != 0 {
		r.done = true
	}
	return r.done, nil
}

// Frame returns the reassembled frame once END has been seen.
func (r *Reassembler) Frame() ([]byte, error) {
	if !r.done {
		return nil, protocol.Desync(ErrIncomplete, "frame not terminated")
	}
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out, nil
}

func (r *Reassembler) reset() {
	r.started = false
	r.done = false
	r.buf = nil
}

// Decode reassembles a complete chunk sequence. The id is taken from the first chunk.
func Decode(chunks [][]byte) ([]byte, error) {
	if len(chunks) == 0 || len(chunks[0]) == 0 {
		return nil, protocol.Desync(ErrIncomplete, "no chunks")
	}
	r := NewReassembler(chunks[0][0] & IDMask)
	for i, c := range chunks {
		done, err := r.Push(c)
		if err != nil {
			return nil, err
		}
		if done && i != len(chunks)-1 {
			return nil, protocol.Desync(ErrIncomplete, "trailing chunks after end")
		}
	}
	return r.Frame()
}

// ReceiveFunc reads one inbound chunk from the link.
type ReceiveFunc func(ctx context.Context) ([]byte, error)

// ReadFrame receives chunks until END, waiting pollWait after every empty read.
func ReadFrame(ctx context.Context, recv ReceiveFunc, id byte, pollWait time.Duration) ([]byte, error) {
	r := NewReassembler(id)
	for {
		c, err := recv(ctx)
		if err != nil {
			return nil, err
		}
		if len(c) == 0 {
			if err := wait(ctx, pollWait); err != nil {
				return nil, err
			}
			continue
		}
		done, err := r.Push(c)
		if err != nil {
			return nil, err
		}
		if done {
			return r.Frame()
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sequence hands out chunk sequence ids, one per transport attempt.
type Sequence struct {
	last byte
}

// Next increments the id mod 64 and returns it.
func (s *Sequence) Next() byte {
	s.last = (s.last + 1) & IDMask
	return s.last
}
