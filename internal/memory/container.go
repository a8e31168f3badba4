package memory

import "context"

// Container is a node of the layout tree: a byte range plus an optional
// required-zone boundary.
type Container struct {
	span     Span
	align    int
	required int
	parent   *Container
	region   *Region
}

func (c *Container) seal() {
	c.span.End = alignUp(c.span.End, c.align)
	if c.required < 0 {
		c.required = c.span.End
	}
}

// Span is the container's declared range.
func (c *Container) Span() Span { return c.span }

// RequiredSpan is the prefix callers fetch by default.
func (c *Container) RequiredSpan() Span {
	end := c.required
	if end < 0 || end > c.span.End {
		end = c.span.End
	}
	return Span{Start: c.span.Start, End: end}
}

func (c *Container) Region() *Region { return c.region }

// Require makes the required zone valid, fetching unless cached.
func (c *Container) Require(ctx context.Context, useCache bool) error {
	return c.RequireRange(ctx, useCache, c.RequiredSpan())
}

func (c *Container) RequireRange(ctx context.Context, useCache bool, s Span) error {
	if c.region == nil {
		return ErrNotFinalized
	}
	return c.region.Require(ctx, useCache, s)
}

// Update pushes the required zone to the device unless useCache is set.
func (c *Container) Update(ctx context.Context, useCache bool) error {
	return c.UpdateRange(ctx, useCache, c.RequiredSpan())
}

func (c *Container) UpdateRange(ctx context.Context, useCache bool, s Span) error {
	if c.region == nil {
		return ErrNotFinalized
	}
	return c.region.Update(ctx, useCache, s)
}
