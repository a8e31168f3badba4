package session

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/thermoctl/internal/device"
	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/link/linktest"
	"github.com/danmuck/thermoctl/internal/link/loopback"
	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/danmuck/thermoctl/internal/protocol/chunk"
	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/danmuck/thermoctl/internal/testutil/testlog"
	"go.uber.org/mock/gomock"
)

var errRadio = errors.New("radio: write failed")

// recorder captures recovery steps and backoff sleeps without waiting.
type recorder struct {
	mu     sync.Mutex
	steps  []Step
	sleeps []time.Duration
}

func (r *recorder) Recovery(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, s)
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestSession(t *testing.T, l link.Link, cfg Config) (*Session, *recorder) {
	t.Helper()
	s, err := New(l, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	rec := &recorder{}
	s.SetObserver(rec)
	s.ladder.sleep = rec.sleep
	return s, rec
}

func newDevice() (*device.Memory, *device.Characteristic) {
	mem := device.NewMemory()
	return mem, device.NewCharacteristic(device.NewHandler(mem), 0)
}

func TestEscalationOrderThenSuccess(t *testing.T) {
	testlog.Start(t)
	ctrl := gomock.NewController(t)
	m := linktest.NewMockLink(ctrl)
	_, dev := newDevice()

	m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errRadio).Times(5)
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c []byte) error {
		if status := dev.Write(c); status != 0 {
			t.Fatalf("device rejected chunk status=%d", status)
		}
		return nil
	}).AnyTimes()
	m.EXPECT().Receive(gomock.Any()).DoAndReturn(func(context.Context) ([]byte, error) {
		return dev.Read(), nil
	}).AnyTimes()
	gomock.InOrder(
		m.EXPECT().Reconnect(gomock.Any()).Return(nil),
		m.EXPECT().Reconnect(gomock.Any()).Return(nil),
		m.EXPECT().Close().Return(nil),
		m.EXPECT().Reconnect(gomock.Any()).Return(nil),
		m.EXPECT().Close().Return(nil),
		m.EXPECT().Reconnect(gomock.Any()).Return(errors.New("still down")),
		m.EXPECT().Close().Return(nil),
		m.EXPECT().Open(gomock.Any()).Return(nil),
	)

	s, rec := newTestSession(t, m, Config{BackoffUnit: time.Second, Seed: 7})
	if _, err := s.Uptime(context.Background()); err != nil {
		t.Fatalf("uptime: %v", err)
	}

	wantRemaining := []int{10, 9, 8, 8, 7, 7, 7, 6, 6, 6}
	wantActions := []Action{
		ActionReconnect,
		ActionReconnect,
		ActionClose, ActionReconnect,
		ActionClose, ActionBackoff, ActionReconnect,
		ActionClose, ActionBackoff, ActionOpen,
	}
	if len(rec.steps) != len(wantActions) {
		t.Fatalf("expected %d steps got=%d (%v)", len(wantActions), len(rec.steps), rec.steps)
	}
	for i, st := range rec.steps {
		if st.Action != wantActions[i] || st.Remaining != wantRemaining[i] {
			t.Fatalf("step %d expected %v@%d got=%v@%d", i, wantActions[i], wantRemaining[i], st.Action, st.Remaining)
		}
	}
	if rec.steps[6].Err == nil {
		t.Fatalf("expected failed reconnect to be reported")
	}
	if len(rec.sleeps) != 2 || rec.sleeps[0] != time.Second || rec.sleeps[1] != 2*time.Second {
		t.Fatalf("unexpected backoff got=%v", rec.sleeps)
	}
	if got := s.Epoch(); got != 6 {
		t.Fatalf("expected epoch 6 got=%d", got)
	}
}

func TestExhaustedAttemptsReturnFinalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := linktest.NewMockLink(ctrl)

	m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errRadio).Times(12)
	m.EXPECT().Reconnect(gomock.Any()).Return(nil).Times(4)
	m.EXPECT().Close().Return(nil).Times(9)
	m.EXPECT().Open(gomock.Any()).Return(nil).Times(2)

	s, rec := newTestSession(t, m, Config{BackoffUnit: time.Millisecond})
	_, err := s.ReadMemory(context.Background(), command.RegionState, 0, 4)

	var te *protocol.TransportError
	if !errors.As(err, &te) || !errors.Is(err, errRadio) {
		t.Fatalf("expected final transport error got=%v", err)
	}
	if te.Op != "send" {
		t.Fatalf("expected send op got=%q", te.Op)
	}
	if last := rec.steps[len(rec.steps)-1]; last.Remaining != 0 || last.Action != ActionBackoff {
		t.Fatalf("expected last recovery at r=0 got=%v@%d", last.Action, last.Remaining)
	}
	var total time.Duration
	for _, d := range rec.sleeps {
		total += d
	}
	if total != 36*time.Millisecond {
		t.Fatalf("expected 36 units of backoff got=%v", total)
	}
	if got := s.Epoch(); got != 12 {
		t.Fatalf("expected epoch 12 got=%d", got)
	}
}

func TestStatusErrorsRetriedUniformly(t *testing.T) {
	_, dev := newDevice()
	l := loopback.New(dev)
	s, rec := newTestSession(t, l, Config{})

	_, err := s.ReadMemory(context.Background(), command.RegionConfig, 2200, 8)
	var se *protocol.StatusError
	if !errors.As(err, &se) || se.Code != protocol.StatusOutOfBounds {
		t.Fatalf("expected out of bounds status got=%v", err)
	}
	if st := l.Stats(); st.Opens != 2 || st.Reconnects != 4 || st.Closes != 9 || st.Redials != 5 {
		t.Fatalf("expected full ladder got=%+v", st)
	}
	if len(rec.sleeps) != 8 {
		t.Fatalf("expected 8 backoff waits got=%d", len(rec.sleeps))
	}
}

func TestFailFastStatus(t *testing.T) {
	_, dev := newDevice()
	l := loopback.New(dev)
	s, rec := newTestSession(t, l, Config{FailFastStatus: true})

	_, err := s.ReadMemory(context.Background(), command.RegionState, 0, 600)
	var se *protocol.StatusError
	if !errors.As(err, &se) || se.Code != protocol.StatusOutOfBounds {
		t.Fatalf("expected out of bounds status got=%v", err)
	}
	if len(rec.steps) != 0 || s.Epoch() != 1 {
		t.Fatalf("expected no recovery got steps=%d epoch=%d", len(rec.steps), s.Epoch())
	}
}

func TestTransientFailureRecoversOverLoopback(t *testing.T) {
	mem, dev := newDevice()
	l := loopback.New(dev)
	s, _ := newTestSession(t, l, Config{})
	ctx := context.Background()

	if err := mem.Write(command.RegionState, 8, []byte{0x34, 0x12}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	l.FailSends(errRadio, errRadio)
	body, err := s.ReadMemory(ctx, command.RegionState, 8, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if binary.LittleEndian.Uint16(body) != 0x1234 {
		t.Fatalf("unexpected body got=%x", body)
	}
	if st := l.Stats(); st.Reconnects != 2 {
		t.Fatalf("expected two reconnects got=%+v", st)
	}

	if err := s.WriteMemory(ctx, command.RegionConfig, 27, []byte("hall\x00")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := mem.Read(command.RegionConfig, 27, 5)
	if err != nil || string(got) != "hall\x00" {
		t.Fatalf("unexpected config bytes got=%q err=%v", got, err)
	}
}

func TestMultiChunkFramesUseFreshSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := linktest.NewMockLink(ctrl)
	_, dev := newDevice()

	var ids []byte
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c []byte) error {
		if c[0]&chunk.FlagBegin != 0 {
			ids = append(ids, c[0]&chunk.IDMask)
		}
		dev.Write(c)
		return nil
	}).AnyTimes()
	m.EXPECT().Receive(gomock.Any()).DoAndReturn(func(context.Context) ([]byte, error) {
		return dev.Read(), nil
	}).AnyTimes()

	s, _ := newTestSession(t, m, Config{})
	ctx := context.Background()
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := s.WriteMemory(ctx, command.RegionConfig, 100, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.ReadMemory(ctx, command.RegionConfig, 100, 100)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("byte %d got=%d", i, b)
		}
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("expected two distinct sequence ids got=%v", ids)
	}
}

func TestShortReadBodyIsProtocolError(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := linktest.NewMockLink(ctrl)

	var sent []byte
	var resp [][]byte
	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c []byte) error {
		sent = append(sent, c[1:]...)
		if c[0]&chunk.FlagEnd != 0 {
			req, err := command.DecodeRequest(sent)
			if err != nil {
				t.Fatalf("decode request: %v", err)
			}
			frame := command.Response{Op: req.Op, ID: req.ID, Body: []byte{1, 2}}.Encode()
			resp, _ = chunk.Encode(c[0]&chunk.IDMask, frame)
		}
		return nil
	})
	m.EXPECT().Receive(gomock.Any()).DoAndReturn(func(context.Context) ([]byte, error) {
		out := resp[0]
		resp = resp[1:]
		return out, nil
	})

	s, _ := newTestSession(t, m, Config{})
	_, err := s.ReadMemory(context.Background(), command.RegionState, 0, 4)
	if !errors.Is(err, protocol.ErrProtocol) || !errors.Is(err, command.ErrShortBody) {
		t.Fatalf("expected short body protocol error got=%v", err)
	}
}

func TestKeepIsReserved(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := linktest.NewMockLink(ctrl)
	s, _ := newTestSession(t, m, Config{})
	if err := s.Keep(context.Background()); !errors.Is(err, command.ErrNotImplemented) {
		t.Fatalf("expected not implemented got=%v", err)
	}
}

func TestOpenAndCloseQueueBehindCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := linktest.NewMockLink(ctrl)
	gomock.InOrder(
		m.EXPECT().Open(gomock.Any()).Return(nil),
		m.EXPECT().Close().Return(nil),
	)

	s, _ := newTestSession(t, m, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := s.Epoch(); got != 2 {
		t.Fatalf("expected open to start a new epoch got=%d", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestConcurrentCommandsNeverInterleave(t *testing.T) {
	mem, dev := newDevice()
	l := loopback.New(dev)
	s, _ := newTestSession(t, l, Config{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = mem.Write(command.RegionState, 4+8*i, []byte{byte(i), byte(i), byte(i), byte(i)})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := i % 4
			body, err := s.ReadMemory(ctx, command.RegionState, uint16(4+8*n), 4)
			if err != nil {
				errs <- err
				return
			}
			for _, b := range body {
				if b != byte(n) {
					errs <- errors.New("interleaved response")
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent read: %v", err)
	}
	if st := l.Stats(); st.Reconnects != 0 {
		t.Fatalf("expected clean run got=%+v", st)
	}
}

// orderLink records the offset of every read request as it reaches the wire.
type orderLink struct {
	*loopback.Link
	mu      sync.Mutex
	offsets []uint16
}

func (l *orderLink) Send(ctx context.Context, c []byte) error {
	if len(c) >= 7 && c[0]&chunk.FlagBegin != 0 && command.Opcode(c[1]) == command.OpRead {
		l.mu.Lock()
		l.offsets = append(l.offsets, binary.LittleEndian.Uint16(c[5:7]))
		l.mu.Unlock()
	}
	return l.Link.Send(ctx, c)
}

func TestCommandsCompleteInSubmissionOrder(t *testing.T) {
	_, dev := newDevice()
	l := &orderLink{Link: loopback.New(dev)}
	s, _ := newTestSession(t, l, Config{})
	ctx := context.Background()

	// Hold the gate so every command queues before any runs.
	if err := s.gate.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	want := []uint16{40, 8, 24}
	errs := make(chan error, len(want))
	for i, off := range want {
		go func(off uint16) {
			_, err := s.ReadMemory(ctx, command.RegionState, off, 4)
			errs <- err
		}(off)
		waitFor(t, func() bool { return s.gate.Waiting() == i+1 })
	}
	s.gate.Release()

	for range want {
		if err := <-errs; err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.offsets) != len(want) {
		t.Fatalf("expected %d requests got=%v", len(want), l.offsets)
	}
	for i := range want {
		if l.offsets[i] != want[i] {
			t.Fatalf("expected submission order %v got=%v", want, l.offsets)
		}
	}
}

func TestNewRequiresLink(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, ErrLinkRequired) {
		t.Fatalf("expected link required got=%v", err)
	}
}
