package memory

import (
	"errors"
	"fmt"

	"github.com/danmuck/thermoctl/internal/protocol/command"
)

var (
	ErrNotFinalized = errors.New("memory: layout not finalized")
	ErrFinalized    = errors.New("memory: layout already finalized")
	ErrUnbalanced   = errors.New("memory: unbalanced container close")
	ErrBadAlign     = errors.New("memory: alignment must be positive")
	ErrOutOfRange   = errors.New("memory: range outside region")
	ErrNoBackend    = errors.New("memory: backend required")
)

// Span is a half-open byte range [Start, End) inside a region.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Plan is the immutable result of a declaration pass.
type Plan struct {
	Region     command.Region
	Size       int
	Align      int
	Required   Span
	Containers int
	Fields     int
}

type binder interface {
	bind(r *Region)
}

// Builder runs the declaration pass: every declaration grows the cursor of
// the innermost open container.
type Builder struct {
	stack      []*Container
	containers []*Container
	fields     []binder
	err        error
	done       bool
}

// NewBuilder opens the root container with the given alignment.
func NewBuilder(align int) *Builder {
	b := &Builder{}
	root := &Container{align: align, required: -1}
	if align <= 0 {
		b.err = ErrBadAlign
		root.align = 1
	}
	b.stack = []*Container{root}
	b.containers = []*Container{root}
	return b
}

func (b *Builder) top() *Container {
	return b.stack[len(b.stack)-1]
}

func (b *Builder) usable() bool {
	if b.done {
		b.fail(ErrFinalized)
		return false
	}
	return b.err == nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Open starts a child container at the parent's cursor, aligned up.
func (b *Builder) Open(align int) *Container {
	if align <= 0 {
		b.fail(ErrBadAlign)
		align = 1
	}
	parent := b.top()
	start := alignUp(parent.span.End, align)
	c := &Container{
		span:     Span{Start: start, End: start},
		align:    align,
		required: -1,
		parent:   parent,
	}
	if b.usable() {
		b.stack = append(b.stack, c)
		b.containers = append(b.containers, c)
	}
	return c
}

// Close ends the innermost child container and advances its parent's cursor.
func (b *Builder) Close() {
	if !b.usable() {
		return
	}
	if len(b.stack) < 2 {
		b.fail(ErrUnbalanced)
		return
	}
	c := b.top()
	c.seal()
	c.parent.span.End = c.span.End
	b.stack = b.stack[:len(b.stack)-1]
}

// MarkRequired ends the required zone of the innermost container at the cursor.
func (b *Builder) MarkRequired() {
	if !b.usable() {
		return
	}
	c := b.top()
	c.required = c.span.End
}

// Declare reserves one leaf field in the innermost container.
func Declare[T any](b *Builder, codec Codec[T]) *Field[T] {
	parent := b.top()
	start := alignUp(parent.span.End, max(codec.Align(), 1))
	f := &Field[T]{
		span:  Span{Start: start, End: start + codec.Width()},
		codec: codec,
	}
	if b.usable() {
		parent.span.End = f.span.End
		b.fields = append(b.fields, f)
	}
	return f
}

func Uint8(b *Builder) *Field[uint8]   { return Declare[uint8](b, IntCodec[uint8]{}) }
func Int8(b *Builder) *Field[int8]     { return Declare[int8](b, IntCodec[int8]{}) }
func Uint16(b *Builder) *Field[uint16] { return Declare[uint16](b, IntCodec[uint16]{}) }
func Int16(b *Builder) *Field[int16]   { return Declare[int16](b, IntCodec[int16]{}) }
func Uint32(b *Builder) *Field[uint32] { return Declare[uint32](b, IntCodec[uint32]{}) }
func Int32(b *Builder) *Field[int32]   { return Declare[int32](b, IntCodec[int32]{}) }

func Decimal(b *Builder) *Field[float64] { return Declare[float64](b, DecimalCodec{}) }

func Text(b *Builder, size int) *Field[string] {
	return Declare[string](b, TextCodec{Size: size})
}

// Plan closes the root and returns the layout plan without allocating.
func (b *Builder) Plan(id command.Region) (Plan, error) {
	if b.done {
		return Plan{}, ErrFinalized
	}
	if b.err != nil {
		return Plan{}, b.err
	}
	if len(b.stack) != 1 {
		return Plan{}, fmt.Errorf("%w: %d containers still open", ErrUnbalanced, len(b.stack)-1)
	}
	root := b.stack[0]
	root.seal()
	return Plan{
		Region:     id,
		Size:       root.span.End,
		Align:      root.align,
		Required:   root.RequiredSpan(),
		Containers: len(b.containers),
		Fields:     len(b.fields),
	}, nil
}

// Finish closes the root, allocates the region's buffer and bitmap, and binds
// every container and field to them. The builder is unusable afterwards.
func (b *Builder) Finish(id command.Region, backend Backend) (*Region, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	plan, err := b.Plan(id)
	if err != nil {
		return nil, err
	}
	if plan.Size > 0xFFFF {
		return nil, fmt.Errorf("%w: size %d exceeds 16-bit offsets", ErrOutOfRange, plan.Size)
	}
	r := newRegion(plan, backend, b.stack[0])
	for _, c := range b.containers {
		c.region = r
	}
	for _, f := range b.fields {
		f.bind(r)
	}
	b.done = true
	return r, nil
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	if rem := n % align; rem != 0 {
		n += align - rem
	}
	return n
}
