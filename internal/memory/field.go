package memory

import "context"

// Field is a typed leaf bound to a byte range of its region's buffer.
type Field[T any] struct {
	span   Span
	codec  Codec[T]
	region *Region
}

func (f *Field[T]) bind(r *Region) { f.region = r }

func (f *Field[T]) Span() Span { return f.span }

// Get ensures the field's bytes are valid and decodes them.
func (f *Field[T]) Get(ctx context.Context, useCache bool) (T, error) {
	var zero T
	if f.region == nil {
		return zero, ErrNotFinalized
	}
	if err := f.region.Require(ctx, useCache, f.span); err != nil {
		return zero, err
	}
	return f.Peek(), nil
}

// Set encodes v into the buffer and writes it through unless useCache is set.
func (f *Field[T]) Set(ctx context.Context, v T, useCache bool) error {
	if f.region == nil {
		return ErrNotFinalized
	}
	f.region.mutate(f.span, func(b []byte) { f.codec.Encode(v, b) })
	return f.region.Update(ctx, useCache, f.span)
}

// Store encodes v into the buffer only. The bytes are not marked valid
// until an enclosing Update.
func (f *Field[T]) Store(v T) error {
	if f.region == nil {
		return ErrNotFinalized
	}
	f.region.mutate(f.span, func(b []byte) { f.codec.Encode(v, b) })
	return nil
}

// Peek decodes the current buffer contents without any I/O.
func (f *Field[T]) Peek() T {
	if f.region == nil {
		var zero T
		return zero
	}
	var out T
	f.region.view(f.span, func(b []byte) { out = f.codec.Decode(b) })
	return out
}
