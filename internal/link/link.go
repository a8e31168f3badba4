package link

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

//go:generate mockgen -destination linktest/mock_link.go -package linktest . Link

// Link is one physical connection to the device characteristic.
type Link interface {
	// Open performs the full pairing flow and resolves the endpoint.
	Open(ctx context.Context) error
	// Reconnect re-establishes the existing session and re-resolves the endpoint.
	Reconnect(ctx context.Context) error
	// Close drops the session. It is not terminal: the next Send redials.
	Close() error
	// Send writes one outbound chunk.
	Send(ctx context.Context, chunk []byte) error
	// Receive reads one inbound chunk. Zero bytes means nothing is ready yet.
	Receive(ctx context.Context) ([]byte, error)
}

var (
	DefaultService        = uuid.MustParse("cc2af14a-2aaf-4c6e-b2e4-3856ee2b4267")
	DefaultCharacteristic = uuid.MustParse("45cc8e0b-8507-45f7-ac95-b798d0fd732a")

	ErrNotConnected     = errors.New("link: not connected")
	ErrEndpointNotFound = errors.New("link: service or characteristic not found")
)

// Endpoint selects the communication characteristic on the device.
type Endpoint struct {
	Service        uuid.UUID
	Characteristic uuid.UUID
}

func DefaultEndpoint() Endpoint {
	return Endpoint{Service: DefaultService, Characteristic: DefaultCharacteristic}
}

// ParseEndpoint parses service and characteristic identifiers; blanks fall back to defaults.
func ParseEndpoint(service, characteristic string) (Endpoint, error) {
	ep := DefaultEndpoint()
	if s := strings.TrimSpace(service); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("link: parse service %q: %w", s, err)
		}
		ep.Service = id
	}
	if s := strings.TrimSpace(characteristic); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("link: parse characteristic %q: %w", s, err)
		}
		ep.Characteristic = id
	}
	return ep, nil
}

func (e Endpoint) String() string {
	return e.Service.String() + "/" + e.Characteristic.String()
}

// MarshalBinary packs the two identifiers for the resolve message.
func (e Endpoint) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 32)
	out = append(out, e.Service[:]...)
	out = append(out, e.Characteristic[:]...)
	return out, nil
}

func (e *Endpoint) UnmarshalBinary(b []byte) error {
	if len(b) != 32 {
		return fmt.Errorf("link: endpoint needs 32 bytes, got %d", len(b))
	}
	copy(e.Service[:], b[:16])
	copy(e.Characteristic[:], b[16:])
	return nil
}
