package device

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/rs/zerolog/log"
)

// ServerConfig controls the simulated peripheral.
type ServerConfig struct {
	Addr     string
	Endpoint link.Endpoint
	// DropEvery closes the connection on every Nth wire operation; zero disables.
	DropEvery int
	// ProcessDelay defers responses like the firmware work queue.
	ProcessDelay time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:     "127.0.0.1:7400",
		Endpoint: link.DefaultEndpoint(),
	}
}

// Server exposes one Characteristic over the GATT-over-TCP wire.
type Server struct {
	cfg  ServerConfig
	mem  *Memory
	char *Characteristic
	ops  atomic.Uint64

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
	cls   bool
}

func NewServer(cfg ServerConfig, mem *Memory) *Server {
	if cfg.Endpoint == (link.Endpoint{}) {
		cfg.Endpoint = link.DefaultEndpoint()
	}
	return &Server{
		cfg:   cfg,
		mem:   mem,
		char:  NewCharacteristic(NewHandler(mem), cfg.ProcessDelay),
		conns: make(map[net.Conn]struct{}),
	}
}

func (s *Server) Memory() *Memory { return s.mem }

// Listen binds the configured address.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts connections until ctx ends or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("device: server not listening")
	}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	log.Info().Str("addr", ln.Addr().String()).Str("endpoint", s.cfg.Endpoint.String()).Msg("device: serving")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.cls
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting and drops every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cls || s.ln == nil {
		return nil
	}
	s.cls = true
	for c := range s.conns {
		_ = c.Close()
	}
	return s.ln.Close()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cls {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log.Debug().Str("remote", remote).Msg("device: central connected")
	resolved := false
	for {
		m, err := link.ReadMessage(conn)
		if err != nil {
			log.Debug().Str("remote", remote).Err(err).Msg("device: central disconnected")
			return
		}
		if n := s.ops.Add(1); s.cfg.DropEvery > 0 && n%uint64(s.cfg.DropEvery) == 0 {
			log.Warn().Str("remote", remote).Uint64("op", n).Msg("device: dropping connection")
			return
		}
		reply := s.apply(m, &resolved)
		if err := link.WriteMessage(conn, reply); err != nil {
			return
		}
	}
}

func (s *Server) apply(m link.Message, resolved *bool) link.Message {
	switch m.Code {
	case link.OpResolve:
		var ep link.Endpoint
		if err := ep.UnmarshalBinary(m.Data); err != nil {
			return link.Message{Code: link.ReplyInvalidLength}
		}
		if ep != s.cfg.Endpoint {
			return link.Message{Code: link.ReplyUnknownEndpoint}
		}
		*resolved = true
		return link.Message{Code: link.ReplyOK}
	case link.OpWrite:
		if !*resolved {
			return link.Message{Code: link.ReplyNotResolved}
		}
		return link.Message{Code: s.char.Write(m.Data)}
	case link.OpRead:
		if !*resolved {
			return link.Message{Code: link.ReplyNotResolved}
		}
		return link.Message{Code: link.ReplyOK, Data: s.char.Read()}
	default:
		return link.Message{Code: link.ReplyUnknownOp}
	}
}
