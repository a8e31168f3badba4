package chunk

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/thermoctl/internal/protocol"
)

func TestEncodeDecodeRoundTripAllSizes(t *testing.T) {
	var seq Sequence
	for size := 1; size <= MaxFrame; size++ {
		frame := make([]byte, size)
		for i := range frame {
			frame[i] = byte(i*7 + size)
		}
		id := seq.Next()
		chunks, err := Encode(id, frame)
		if err != nil {
			t.Fatalf("encode size=%d: %v", size, err)
		}
		if want := (size + MaxPayload - 1) / MaxPayload; len(chunks) != want {
			t.Fatalf("size=%d chunk count got=%d want=%d", size, len(chunks), want)
		}
		for i, c := range chunks {
			if c[0]&IDMask != id {
				t.Fatalf("size=%d chunk=%d id got=%d want=%d", size, i, c[0]&IDMask, id)
			}
			if begin := c[0]&FlagBegin != 0; begin != (i == 0) {
				t.Fatalf("size=%d chunk=%d begin=%v", size, i, begin)
			}
			if end := c[0]&FlagEnd != 0; end != (i == len(chunks)-1) {
				t.Fatalf("size=%d chunk=%d end=%v", size, i, end)
			}
			if len(c)-1 > MaxPayload {
				t.Fatalf("size=%d chunk=%d payload=%d", size, i, len(c)-1)
			}
		}
		out, err := Decode(chunks)
		if err != nil {
			t.Fatalf("decode size=%d: %v", size, err)
		}
		if !bytes.Equal(out, frame) {
			t.Fatalf("size=%d payload mismatch", size)
		}
	}
}

func TestEncodeSingleChunkCarriesBothFlags(t *testing.T) {
	chunks, err := Encode(5, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0][0] != 5|FlagBegin|FlagEnd {
		t.Fatalf("unexpected header %#x", chunks[0][0])
	}
}

func TestEncodeRejectsEmptyAndOversized(t *testing.T) {
	if _, err := Encode(1, nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	if _, err := Encode(1, make([]byte, MaxFrame+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReassemblerRejectsSequenceMismatch(t *testing.T) {
	chunks, _ := Encode(9, make([]byte, 40))
	chunks[1][0] = Header(10, false, false)
	out, err := Decode(chunks)
	if !errors.Is(err, ErrSequenceMismatch) || !errors.Is(err, protocol.ErrProtocol) {
		t.Fatalf("expected sequence mismatch protocol error, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no partial result, got %d bytes", len(out))
	}
}

func TestReassemblerRejectsMissingBegin(t *testing.T) {
	r := NewReassembler(3)
	_, err := r.Push([]byte{Header(3, false, true), 0xAA})
	if !errors.Is(err, ErrMissingBegin) || !errors.Is(err, protocol.ErrProtocol) {
		t.Fatalf("expected missing begin protocol error, got %v", err)
	}
	if _, err := r.Frame(); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete after rejection, got %v", err)
	}
}

func TestReassemblerIgnoresEmptyReads(t *testing.T) {
	r := NewReassembler(1)
	done, err := r.Push(nil)
	if done || err != nil {
		t.Fatalf("empty read should be not-ready: done=%v err=%v", done, err)
	}
}

func TestReadFramePollsOnEmptyReads(t *testing.T) {
	chunks, _ := Encode(2, []byte("polled response frame"))
	script := append([][]byte{{}, {}}, chunks...)
	calls := 0
	recv := func(context.Context) ([]byte, error) {
		c := script[calls]
		calls++
		return c, nil
	}
	out, err := ReadFrame(context.Background(), recv, 2, time.Millisecond)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(out) != "polled response frame" {
		t.Fatalf("unexpected frame %q", out)
	}
	if calls != len(script) {
		t.Fatalf("expected %d receives, got %d", len(script), calls)
	}
}

func TestReadFrameStopsOnContextWhilePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recv := func(context.Context) ([]byte, error) { return nil, nil }
	if _, err := ReadFrame(ctx, recv, 1, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSequenceWrapsAt64(t *testing.T) {
	var s Sequence
	var last byte
	for range 64 {
		last = s.Next()
	}
	if last != 0 {
		t.Fatalf("expected wrap to 0, got %d", last)
	}
	if got := s.Next(); got != 1 {
		t.Fatalf("expected 1 after wrap, got %d", got)
	}
}
