package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/thermoctl/internal/protocol"
)

const HeaderLen = 4

// Opcode selects the device operation.
type Opcode uint8

const (
	OpGetUpTime Opcode = 1
	OpRead      Opcode = 2
	OpWrite     Opcode = 3
	// OpKeep is reserved by the firmware and never issued.
	OpKeep Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpGetUpTime:
		return "get-up-time"
	case OpRead:
		return "read-memory"
	case OpWrite:
		return "write-memory"
	case OpKeep:
		return "keep"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// Region is the memory selector carried in byte 1 of a request.
type Region uint8

const (
	RegionConfig Region = 0
	RegionState  Region = 1
)

func (r Region) String() string {
	switch r {
	case RegionConfig:
		return "config"
	case RegionState:
		return "state"
	default:
		return fmt.Sprintf("region(%d)", uint8(r))
	}
}

// ParseRegion accepts "config"/"state" or the numeric selector.
func ParseRegion(s string) (Region, error) {
	switch s {
	case "config", "0":
		return RegionConfig, nil
	case "state", "1":
		return RegionState, nil
	default:
		return 0, fmt.Errorf("command: unknown region %q", s)
	}
}

var (
	ErrShortHeader     = errors.New("command: short header")
	ErrOutOfSync       = errors.New("command: out of sync")
	ErrShortBody       = errors.New("command: short response body")
	ErrNotImplemented  = errors.New("command: keep is reserved and not implemented")
	ErrPayloadTooLarge = errors.New("command: payload too large")
)

// Request is one outbound command frame.
type Request struct {
	Op      Opcode
	Tag     uint8
	ID      uint16
	Payload []byte
}

// Response is one inbound response frame.
type Response struct {
	Op     Opcode
	Status uint8
	ID     uint16
	Body   []byte
}

func (r Request) Encode() []byte {
	buf := make([]byte, HeaderLen+len(r.Payload))
	buf[0] = byte(r.Op)
	buf[1] = r.Tag
	binary.LittleEndian.PutUint16(buf[2:4], r.ID)
	copy(buf[HeaderLen:], r.Payload)
	return buf
}

func DecodeRequest(b []byte) (Request, error) {
	if len(b) < HeaderLen {
		return Request{}, ErrShortHeader
	}
	return Request{
		Op:      Opcode(b[0]),
		Tag:     b[1],
		ID:      binary.LittleEndian.Uint16(b[2:4]),
		Payload: append([]byte(nil), b[HeaderLen:]...),
	}, nil
}

func (r Response) Encode() []byte {
	buf := make([]byte, HeaderLen+len(r.Body))
	buf[0] = byte(r.Op)
	buf[1] = r.Status
	binary.LittleEndian.PutUint16(buf[2:4], r.ID)
	copy(buf[HeaderLen:], r.Body)
	return buf
}

func DecodeResponse(b []byte) (Response, error) {
	if len(b) < HeaderLen {
		return Response{}, protocol.Desync(ErrShortHeader, "response of %d bytes", len(b))
	}
	return Response{
		Op:     Opcode(b[0]),
		Status: b[1],
		ID:     binary.LittleEndian.Uint16(b[2:4]),
		Body:   append([]byte(nil), b[HeaderLen:]...),
	}, nil
}

// Validate checks that raw answers req and returns the response body.
// Header mismatches win over the status byte.
func Validate(req Request, raw []byte) ([]byte, error) {
	resp, err := DecodeResponse(raw)
	if err != nil {
		return nil, err
	}
	if resp.Op != req.Op || resp.ID != req.ID {
		return nil, protocol.Desync(ErrOutOfSync, "command out of sync: op=%d/%d id=%d/%d", resp.Op, req.Op, resp.ID, req.ID)
	}
	if resp.Status != protocol.StatusOK {
		return nil, &protocol.StatusError{Code: resp.Status}
	}
	return resp.Body, nil
}

// IDSource draws correlation ids.
type IDSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewIDSource(seed int64) *IDSource {
	return &IDSource{rng: rand.New(rand.NewSource(seed))}
}

func NewRandomIDSource() *IDSource {
	return NewIDSource(time.Now().UnixNano())
}

func (s *IDSource) Next() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(s.rng.Intn(0xFFFF))
}

// Uptime builds a get-up-time request.
func Uptime(id uint16) Request {
	return Request{Op: OpGetUpTime, ID: id}
}

// ReadMemory builds a read of length bytes at offset in region.
func ReadMemory(id uint16, region Region, offset, length uint16) Request {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint16(p[0:2], offset)
	binary.LittleEndian.PutUint16(p[2:4], length)
	return Request{Op: OpRead, Tag: uint8(region), ID: id, Payload: p}
}

// WriteMemory builds a write of data at offset in region.
func WriteMemory(id uint16, region Region, offset uint16, data []byte) (Request, error) {
	if HeaderLen+2+len(data) > MaxRequest {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	p := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(p[0:2], offset)
	copy(p[2:], data)
	return Request{Op: OpWrite, Tag: uint8(region), ID: id, Payload: p}, nil
}

// MaxRequest matches the device request and response buffers.
const MaxRequest = 512

const (
	// MaxReadLength is the largest body one read-memory response carries.
	MaxReadLength = MaxRequest - HeaderLen
	// MaxWriteLength is the largest payload one write-memory request carries.
	MaxWriteLength = MaxRequest - HeaderLen - 2
)

// ReadArgs decodes a read-memory payload.
func ReadArgs(p []byte) (offset, length uint16, err error) {
	if len(p) < 4 {
		return 0, 0, ErrShortBody
	}
	return binary.LittleEndian.Uint16(p[0:2]), binary.LittleEndian.Uint16(p[2:4]), nil
}

// WriteArgs decodes a write-memory payload.
func WriteArgs(p []byte) (offset uint16, data []byte, err error) {
	if len(p) < 2 {
		return 0, nil, ErrShortBody
	}
	return binary.LittleEndian.Uint16(p[0:2]), p[2:], nil
}

// ParseUptime decodes the 4-byte seconds counter of a get-up-time body.
func ParseUptime(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, protocol.Desync(ErrShortBody, "uptime body of %d bytes", len(body))
	}
	return binary.LittleEndian.Uint32(body[0:4]), nil
}
