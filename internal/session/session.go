package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/memory"
	"github.com/danmuck/thermoctl/internal/observability"
	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/danmuck/thermoctl/internal/protocol/chunk"
	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrLinkRequired = errors.New("session: link required")

// Session is the single owner of one device link.
type Session struct {
	id     xid.ID
	cfg    Config
	link   link.Link
	gate   Gate
	ladder *Ladder
	ids    *command.IDSource
	epoch  atomic.Uint64
	logger zerolog.Logger

	// seq is only touched while holding the gate.
	seq chunk.Sequence
}

var _ memory.Backend = (*Session)(nil)

func New(l link.Link, cfg Config) (*Session, error) {
	if l == nil {
		return nil, ErrLinkRequired
	}
	cfg = cfg.WithDefaults()
	s := &Session{
		id:   xid.New(),
		cfg:  cfg,
		link: l,
	}
	if cfg.Seed != 0 {
		s.ids = command.NewIDSource(cfg.Seed)
	} else {
		s.ids = command.NewRandomIDSource()
	}
	s.logger = log.With().Str("session", s.id.String()).Logger()
	s.epoch.Store(1)
	s.ladder = newLadder(l, &s.epoch, cfg, s.logger)
	return s, nil
}

func (s *Session) ID() string { return s.id.String() }

// SetObserver installs an observer for recovery steps. Call before use.
func (s *Session) SetObserver(o Observer) { s.ladder.observer = o }

// Epoch is the current connection generation.
func (s *Session) Epoch() uint64 { return s.epoch.Load() }

// Open pairs with the device. It queues behind in-flight commands and
// starts a new connection generation.
func (s *Session) Open(ctx context.Context) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()
	s.ladder.advance()
	if err := s.link.Open(ctx); err != nil {
		return err
	}
	s.logger.Info().Uint64("epoch", s.Epoch()).Msg("session: open")
	return nil
}

// Close releases the link once queued commands have finished.
func (s *Session) Close() error {
	if err := s.gate.Acquire(context.Background()); err != nil {
		return err
	}
	defer s.gate.Release()
	s.logger.Info().Msg("session: close")
	return s.link.Close()
}

// Exec runs req through the gate and the retry ladder and returns the
// validated response body.
func (s *Session) Exec(ctx context.Context, req command.Request) ([]byte, error) {
	frame := req.Encode()
	if len(frame) > chunk.MaxFrame {
		return nil, fmt.Errorf("%w: %d bytes", chunk.ErrFrameTooLarge, len(frame))
	}

	start := time.Now()
	op := req.Op.String()
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	body, err := s.ladder.Run(ctx, op, func(ctx context.Context) ([]byte, error) {
		return s.attempt(ctx, req, frame)
	})
	s.gate.Release()

	observability.RecordCommand(op, time.Since(start), err == nil)
	if err != nil {
		s.logger.Error().Str("op", op).Uint16("id", req.ID).Err(err).Msg("session: command failed")
		return nil, err
	}
	s.logger.Debug().Str("op", op).Uint16("id", req.ID).Int("body", len(body)).Dur("duration", time.Since(start)).Msg("session: command")
	return body, nil
}

// attempt is one full transport round: fresh sequence id, send every chunk,
// reassemble the response and validate its header.
func (s *Session) attempt(ctx context.Context, req command.Request, frame []byte) ([]byte, error) {
	id := s.seq.Next()
	chunks, err := chunk.Encode(id, frame)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if err := s.link.Send(ctx, c); err != nil {
			return nil, protocol.Transport("send", err)
		}
	}
	raw, err := chunk.ReadFrame(ctx, s.receive, id, s.cfg.PollWait)
	if err != nil {
		return nil, err
	}
	return command.Validate(req, raw)
}

func (s *Session) receive(ctx context.Context) ([]byte, error) {
	b, err := s.link.Receive(ctx)
	if err != nil {
		return nil, protocol.Transport("receive", err)
	}
	return b, nil
}

// Uptime returns the device's seconds since boot.
func (s *Session) Uptime(ctx context.Context) (uint32, error) {
	body, err := s.Exec(ctx, command.Uptime(s.ids.Next()))
	if err != nil {
		return 0, err
	}
	return command.ParseUptime(body)
}

// ReadMemory returns exactly length bytes at offset in region.
func (s *Session) ReadMemory(ctx context.Context, region command.Region, offset, length uint16) ([]byte, error) {
	body, err := s.Exec(ctx, command.ReadMemory(s.ids.Next(), region, offset, length))
	if err != nil {
		return nil, err
	}
	if len(body) != int(length) {
		return nil, protocol.Desync(command.ErrShortBody, "read %d bytes at %s+%d got %d", length, region, offset, len(body))
	}
	return body, nil
}

func (s *Session) WriteMemory(ctx context.Context, region command.Region, offset uint16, data []byte) error {
	req, err := command.WriteMemory(s.ids.Next(), region, offset, data)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, req)
	return err
}

// Keep would ask the device to persist its config. The firmware reserves
// the opcode without implementing it, so nothing is sent.
func (s *Session) Keep(context.Context) error {
	return command.ErrNotImplemented
}
