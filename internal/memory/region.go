package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/thermoctl/internal/observability"
	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/rs/zerolog/log"
)

var ErrShortRead = errors.New("memory: short read")

// Backend moves region bytes to and from the device.
type Backend interface {
	// Epoch is the current connection generation.
	Epoch() uint64
	ReadMemory(ctx context.Context, region command.Region, offset, length uint16) ([]byte, error)
	WriteMemory(ctx context.Context, region command.Region, offset uint16, data []byte) error
}

// Region owns the single backing buffer and validity bitmap shared by every
// node of one layout.
type Region struct {
	plan    Plan
	backend Backend
	root    *Container

	mu    sync.Mutex
	buf   []byte
	valid []bool
	// epoch stamps the bitmap with the generation it was filled under.
	epoch uint64
}

func newRegion(plan Plan, backend Backend, root *Container) *Region {
	return &Region{
		plan:    plan,
		backend: backend,
		root:    root,
		buf:     make([]byte, plan.Size),
		valid:   make([]bool, plan.Size),
	}
}

func (r *Region) ID() command.Region { return r.plan.Region }
func (r *Region) Plan() Plan         { return r.plan }
func (r *Region) Size() int          { return r.plan.Size }
func (r *Region) Root() *Container   { return r.root }

func (r *Region) check(s Span) error {
	if s.Start < 0 || s.End > len(r.buf) || s.Start > s.End {
		return fmt.Errorf("%w: %s in %s of %d bytes", ErrOutOfRange, s, r.plan.Region, len(r.buf))
	}
	return nil
}

// Require makes s valid. A changed epoch clears the whole bitmap and forces
// a fetch; otherwise useCache skips the fetch when every byte is valid.
// Ranges longer than one response are fetched piecewise.
func (r *Region) Require(ctx context.Context, useCache bool, s Span) error {
	if err := r.check(s); err != nil {
		return err
	}
	r.mu.Lock()
	fetch := !useCache
	if cur := r.backend.Epoch(); cur != r.epoch {
		clear(r.valid)
		r.epoch = cur
		fetch = true
	} else if useCache {
		for _, ok := range r.valid[s.Start:s.End] {
			if !ok {
				fetch = true
				break
			}
		}
	}
	r.mu.Unlock()

	region := r.plan.Region.String()
	if !fetch {
		observability.RecordCacheLookup(region, true)
		return nil
	}
	observability.RecordCacheLookup(region, false)
	if s.Len() == 0 {
		return nil
	}

	for _, piece := range split(s, command.MaxReadLength) {
		data, err := r.backend.ReadMemory(ctx, r.plan.Region, uint16(piece.Start), uint16(piece.Len()))
		if err != nil {
			return err
		}
		if len(data) != piece.Len() {
			return protocol.Desync(ErrShortRead, "read %s got %d bytes", piece, len(data))
		}
		r.mu.Lock()
		copy(r.buf[piece.Start:piece.End], data)
		markValid(r.valid, piece)
		r.mu.Unlock()
	}
	log.Debug().Str("region", region).Str("span", s.String()).Msg("memory: fetched")
	return nil
}

// Update marks s valid under the current epoch and, unless useCache is set,
// writes it through.
func (r *Region) Update(ctx context.Context, useCache bool, s Span) error {
	if err := r.check(s); err != nil {
		return err
	}
	r.mu.Lock()
	if cur := r.backend.Epoch(); cur != r.epoch {
		clear(r.valid)
		r.epoch = cur
	}
	markValid(r.valid, s)
	data := append([]byte(nil), r.buf[s.Start:s.End]...)
	r.mu.Unlock()
	if useCache || s.Len() == 0 {
		return nil
	}
	for _, piece := range split(s, command.MaxWriteLength) {
		chunk := data[piece.Start-s.Start : piece.End-s.Start]
		if err := r.backend.WriteMemory(ctx, r.plan.Region, uint16(piece.Start), chunk); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate clears the bitmap without waiting for an epoch change.
func (r *Region) Invalidate() {
	r.mu.Lock()
	clear(r.valid)
	r.mu.Unlock()
}

// Valid reports whether every byte of s is flagged valid under the current epoch.
func (r *Region) Valid(s Span) bool {
	if r.check(s) != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != r.backend.Epoch() {
		return false
	}
	for _, ok := range r.valid[s.Start:s.End] {
		if !ok {
			return false
		}
	}
	return true
}

// Bytes copies the buffer contents of s.
func (r *Region) Bytes(s Span) ([]byte, error) {
	if err := r.check(s); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf[s.Start:s.End]...), nil
}

func (r *Region) view(s Span, fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.buf[s.Start:s.End])
}

func (r *Region) mutate(s Span, fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.buf[s.Start:s.End])
}

// split cuts s into consecutive pieces of at most n bytes, one per command.
func split(s Span, n int) []Span {
	var out []Span
	for start := s.Start; start < s.End; start += n {
		out = append(out, Span{Start: start, End: min(start+n, s.End)})
	}
	return out
}

func markValid(valid []bool, s Span) {
	for i := s.Start; i < s.End; i++ {
		valid[i] = true
	}
}
