package device

import (
	"sync"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/protocol/chunk"
)

const noRequest = 0xFF

// Characteristic is the device side of the chunked endpoint.
type Characteristic struct {
	handler *Handler
	delay   time.Duration

	mu         sync.Mutex
	requestID  byte
	request    []byte
	responseID byte
	response   []byte
	sent       int
	generation uint64
}

// NewCharacteristic answers requests with h. A positive delay models the
// firmware's deferred work queue: reads stay empty until it elapses.
func NewCharacteristic(h *Handler, delay time.Duration) *Characteristic {
	return &Characteristic{
		handler:    h,
		delay:      delay,
		requestID:  noRequest,
		responseID: noRequest,
	}
}

// Write accepts one inbound chunk and returns a link reply status.
func (c *Characteristic) Write(in []byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(in) < 1 || len(in)-1 > chunk.MaxPayload {
		c.resetRequest()
		return link.ReplyInvalidLength
	}
	flags := in[0]
	payload := in[1:]
	switch {
	case flags&chunk.FlagBegin != 0:
		c.requestID = flags & chunk.IDMask
		c.request = c.request[:0]
	case flags&chunk.IDMask != c.requestID:
		c.resetRequest()
		return link.ReplyNotAllowed
	}
	if len(c.request)+len(payload) > chunk.MaxFrame {
		c.resetRequest()
		return link.ReplyInvalidLength
	}
	c.request = append(c.request, payload...)

	if flags&chunk.FlagEnd != 0 {
		req := append([]byte(nil), c.request...)
		c.responseID = c.requestID
		c.response = nil
		c.sent = 0
		c.generation++
		c.resetRequest()
		c.dispatch(req, c.generation)
	}
	return link.ReplyOK
}

func (c *Characteristic) dispatch(req []byte, gen uint64) {
	if c.delay <= 0 {
		c.response = c.handler.Handle(req)
		return
	}
	time.AfterFunc(c.delay, func() {
		resp := c.handler.Handle(req)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == gen {
			c.response = resp
		}
	})
}

// Read returns the next outbound chunk, or nothing while no response is ready.
func (c *Characteristic) Read() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.response) == 0 {
		return nil
	}
	if c.sent >= len(c.response) {
		return []byte{chunk.Header(c.responseID, false, true)}
	}
	n := min(len(c.response)-c.sent, chunk.MaxPayload)
	out := make([]byte, 1+n)
	out[0] = chunk.Header(c.responseID, c.sent == 0, c.sent+n == len(c.response))
	copy(out[1:], c.response[c.sent:c.sent+n])
	c.sent += n
	return out
}

func (c *Characteristic) resetRequest() {
	c.requestID = noRequest
	c.request = c.request[:0]
}
