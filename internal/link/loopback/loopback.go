// Package loopback binds a link.Link directly to an in-process simulated
// device characteristic.
package loopback

import (
	"context"
	"sync"

	"github.com/danmuck/thermoctl/internal/device"
	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/protocol"
)

// Link is connected from creation. A Send on a closed link redials first.
// Faults queued with FailSends make the next Send calls fail without
// reaching the device.
type Link struct {
	dev *device.Characteristic

	mu        sync.Mutex
	connected bool
	failures  []error
	stats     Stats
}

// Stats counts calls per method.
type Stats struct {
	Opens      int
	Reconnects int
	Closes     int
	Redials    int
	Sends      int
	Receives   int
}

var _ link.Link = (*Link)(nil)

func New(dev *device.Characteristic) *Link {
	return &Link{dev: dev, connected: true}
}

// FailSends queues one failure per error for the next Send calls.
func (l *Link) FailSends(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, errs...)
}

func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) Open(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Opens++
	l.connected = true
	return nil
}

func (l *Link) Reconnect(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Reconnects++
	l.connected = true
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Closes++
	l.connected = false
	return nil
}

func (l *Link) Send(_ context.Context, c []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Sends++
	if len(l.failures) > 0 {
		err := l.failures[0]
		l.failures = l.failures[1:]
		return protocol.Transport("send", err)
	}
	if !l.connected {
		l.stats.Redials++
		l.connected = true
	}
	return protocol.Transport("send", link.ReplyError(l.dev.Write(c)))
}

func (l *Link) Receive(context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Receives++
	if !l.connected {
		return nil, protocol.Transport("receive", link.ErrNotConnected)
	}
	return l.dev.Read(), nil
}
