package netlink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/thermoctl/internal/device"
	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/link/netlink"
	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/danmuck/thermoctl/internal/session"
	"github.com/danmuck/thermoctl/internal/testutil/testlog"
	"github.com/google/uuid"
)

func startServer(t *testing.T, cfg device.ServerConfig) (*device.Server, string) {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	srv := device.NewServer(cfg, device.NewMemory())
	addr, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return srv, addr.String()
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := netlink.New(netlink.Config{}); !errors.Is(err, netlink.ErrAddressRequired) {
		t.Fatalf("expected address required got=%v", err)
	}
}

func TestSessionOverTCP(t *testing.T) {
	testlog.Start(t)
	srv, addr := startServer(t, device.DefaultServerConfig())

	l, err := netlink.New(netlink.Config{Address: addr})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	s, err := session.New(l, session.Config{PollWait: time.Millisecond, BackoffUnit: time.Millisecond})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Uptime(ctx); err != nil {
		t.Fatalf("uptime: %v", err)
	}
	data := []byte("over the wire and back again")
	if err := s.WriteMemory(ctx, command.RegionConfig, 27, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := srv.Memory().Read(command.RegionConfig, 27, len(data))
	if err != nil || string(got) != string(data) {
		t.Fatalf("device memory got=%q err=%v", got, err)
	}
	back, err := s.ReadMemory(ctx, command.RegionConfig, 27, uint16(len(data)))
	if err != nil || string(back) != string(data) {
		t.Fatalf("read back got=%q err=%v", back, err)
	}
}

func TestDroppedConnectionsAreRecovered(t *testing.T) {
	cfg := device.DefaultServerConfig()
	cfg.DropEvery = 4
	_, addr := startServer(t, cfg)

	l, err := netlink.New(netlink.Config{Address: addr})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	s, err := session.New(l, session.Config{PollWait: time.Millisecond, BackoffUnit: time.Millisecond})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 5; i++ {
		if _, err := s.ReadMemory(ctx, command.RegionState, 0, 4); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if s.Epoch() <= 2 {
		t.Fatalf("expected drops to advance the epoch got=%d", s.Epoch())
	}
}

func TestWrongEndpointIsTransportError(t *testing.T) {
	_, addr := startServer(t, device.DefaultServerConfig())
	l, err := netlink.New(netlink.Config{
		Address:  addr,
		Endpoint: link.Endpoint{Service: uuid.New(), Characteristic: link.DefaultCharacteristic},
	})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	err = l.Open(context.Background())
	var te *protocol.TransportError
	if !errors.As(err, &te) || !errors.Is(err, link.ErrEndpointNotFound) {
		t.Fatalf("expected endpoint not found got=%v", err)
	}
}

func TestConfirmGatesPairing(t *testing.T) {
	_, addr := startServer(t, device.DefaultServerConfig())
	refused := errors.New("user declined")
	l, err := netlink.New(netlink.Config{
		Address: addr,
		Confirm: func(context.Context) error { return refused },
	})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	if err := l.Open(context.Background()); !errors.Is(err, refused) {
		t.Fatalf("expected refusal got=%v", err)
	}
	if err := l.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect skips confirmation got=%v", err)
	}
	_ = l.Close()
}

func TestSendRedialsAfterClose(t *testing.T) {
	_, addr := startServer(t, device.DefaultServerConfig())
	l, err := netlink.New(netlink.Config{Address: addr})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	ctx := context.Background()
	if _, err := l.Receive(ctx); !errors.Is(err, link.ErrNotConnected) {
		t.Fatalf("expected receive before connect to fail got=%v", err)
	}
	if err := l.Send(ctx, []byte{0xC1, 1, 0, 0, 0}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = l.Close()
}
