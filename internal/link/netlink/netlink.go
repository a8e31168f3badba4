package netlink

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrAddressRequired = errors.New("netlink: address required")

// Config describes how to reach a device simulator or BLE bridge over TCP.
type Config struct {
	Address        string
	Endpoint       link.Endpoint
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	// Confirm gates the full pairing flow; nil accepts without asking.
	Confirm func(ctx context.Context) error
}

func DefaultConfig() Config {
	return Config{
		Endpoint:       link.DefaultEndpoint(),
		ConnectTimeout: 5 * time.Second,
		IOTimeout:      5 * time.Second,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = d.IOTimeout
	}
	if c.Endpoint == (link.Endpoint{}) {
		c.Endpoint = d.Endpoint
	}
	return c
}

// Link speaks the GATT-over-TCP wire.
type Link struct {
	cfg  Config
	mu   sync.Mutex
	conn net.Conn
}

var _ link.Link = (*Link)(nil)

func New(cfg Config) (*Link, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	return &Link{cfg: cfg.WithDefaults()}, nil
}

func (l *Link) Open(ctx context.Context) error {
	if l.cfg.Confirm != nil {
		if err := l.cfg.Confirm(ctx); err != nil {
			return protocol.Transport("pair", err)
		}
	}
	log.Info().Str("addr", l.cfg.Address).Str("endpoint", l.cfg.Endpoint.String()).Msg("pairing device")
	return l.connect(ctx, "pair")
}

func (l *Link) Reconnect(ctx context.Context) error {
	log.Debug().Str("addr", l.cfg.Address).Msg("reconnecting device")
	return l.connect(ctx, "reconnect")
}

func (l *Link) connect(ctx context.Context, op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	dialer := net.Dialer{Timeout: l.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", l.cfg.Address)
	if err != nil {
		return protocol.Transport(op, err)
	}
	ep, _ := l.cfg.Endpoint.MarshalBinary()
	reply, err := l.roundTrip(ctx, conn, link.Message{Code: link.OpResolve, Data: ep})
	if err == nil {
		err = link.ReplyError(reply.Code)
	}
	if err != nil {
		_ = conn.Close()
		return protocol.Transport(op, err)
	}
	l.conn = conn
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *Link) Send(ctx context.Context, c []byte) error {
	l.mu.Lock()
	idle := l.conn == nil
	l.mu.Unlock()
	if idle {
		log.Debug().Str("addr", l.cfg.Address).Msg("redialing device")
		if err := l.connect(ctx, "send"); err != nil {
			return err
		}
	}
	reply, err := l.exchange(ctx, "send", link.Message{Code: link.OpWrite, Data: c})
	if err != nil {
		return err
	}
	return protocol.Transport("send", link.ReplyError(reply.Code))
}

func (l *Link) Receive(ctx context.Context) ([]byte, error) {
	reply, err := l.exchange(ctx, "receive", link.Message{Code: link.OpRead})
	if err != nil {
		return nil, err
	}
	if err := link.ReplyError(reply.Code); err != nil {
		return nil, protocol.Transport("receive", err)
	}
	return reply.Data, nil
}

func (l *Link) exchange(ctx context.Context, op string, m link.Message) (link.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return link.Message{}, protocol.Transport(op, link.ErrNotConnected)
	}
	reply, err := l.roundTrip(ctx, l.conn, m)
	if err != nil {
		_ = l.conn.Close()
		l.conn = nil
		return link.Message{}, protocol.Transport(op, err)
	}
	return reply, nil
}

func (l *Link) roundTrip(ctx context.Context, conn net.Conn, m link.Message) (link.Message, error) {
	deadline := time.Now().Add(l.cfg.IOTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return link.Message{}, err
	}
	if err := link.WriteMessage(conn, m); err != nil {
		return link.Message{}, err
	}
	return link.ReadMessage(conn)
}
