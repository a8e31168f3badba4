package thermo

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/thermoctl/internal/memory"
	"github.com/danmuck/thermoctl/internal/protocol/command"
)

const (
	ConfigSize   = 2204
	NodeCount    = 32
	ChannelCount = 8
	NameSize     = 48
)

var ErrIndex = errors.New("thermo: index out of range")

type TransitionFields struct {
	*memory.Container
	Time  *memory.Field[int16]
	Month *memory.Field[int8]
	Day   *memory.Field[int8]
	Week  *memory.Field[int8]
}

func declareTransition(b *memory.Builder) TransitionFields {
	t := TransitionFields{Container: b.Open(2)}
	t.Time = memory.Int16(b)
	t.Month = memory.Int8(b)
	t.Day = memory.Int8(b)
	t.Week = memory.Int8(b)
	b.Close()
	return t
}

type TimeZoneFields struct {
	*memory.Container
	UTCOffset     *memory.Field[int16]
	DaylightDelta *memory.Field[int16]
	Start         TransitionFields
	End           TransitionFields
}

func declareTimeZone(b *memory.Builder) TimeZoneFields {
	tz := TimeZoneFields{Container: b.Open(2)}
	tz.UTCOffset = memory.Int16(b)
	tz.DaylightDelta = memory.Int16(b)
	tz.Start = declareTransition(b)
	tz.End = declareTransition(b)
	b.Close()
	return tz
}

type ConfigNode struct {
	*memory.Container
	AddrLow  *memory.Field[uint32]
	AddrHigh *memory.Field[uint16]
	Channel  *memory.Field[uint8]
	Name     *memory.Field[string]
}

func declareConfigNode(b *memory.Builder) *ConfigNode {
	n := &ConfigNode{Container: b.Open(4)}
	n.AddrLow = memory.Uint32(b)
	n.AddrHigh = memory.Uint16(b)
	n.Channel = memory.Uint8(b)
	n.Name = memory.Text(b, NameSize)
	b.Close()
	return n
}

type ConfigChannel struct {
	*memory.Container
	Function *memory.Field[uint8]
	Name     *memory.Field[string]
}

func declareConfigChannel(b *memory.Builder) *ConfigChannel {
	c := &ConfigChannel{Container: b.Open(1)}
	c.Function = memory.Uint8(b)
	c.Name = memory.Text(b, NameSize)
	b.Close()
	return c
}

// Config is the bound Config region. Its required zone is the header plus
// the time zone.
type Config struct {
	*memory.Region
	Version      *memory.Field[uint8]
	NodeCount    *memory.Field[uint8]
	ChannelCount *memory.Field[uint8]
	TimeZone     TimeZoneFields
	Nodes        [NodeCount]*ConfigNode
	Channels     [ChannelCount]*ConfigChannel
}

func NewConfig(backend memory.Backend) (*Config, error) {
	b := memory.NewBuilder(4)
	c := &Config{}
	c.Version = memory.Uint8(b)
	c.NodeCount = memory.Uint8(b)
	c.ChannelCount = memory.Uint8(b)
	memory.Uint8(b)
	c.TimeZone = declareTimeZone(b)
	b.MarkRequired()
	for i := range c.Nodes {
		c.Nodes[i] = declareConfigNode(b)
	}
	for i := range c.Channels {
		c.Channels[i] = declareConfigChannel(b)
	}
	r, err := b.Finish(command.RegionConfig, backend)
	if err != nil {
		return nil, err
	}
	if r.Size() != ConfigSize {
		return nil, fmt.Errorf("thermo: config layout is %d bytes, want %d", r.Size(), ConfigSize)
	}
	c.Region = r
	return c, nil
}

func (c *Config) Node(i int) (*ConfigNode, error) {
	if i < 0 || i >= NodeCount {
		return nil, fmt.Errorf("%w: node %d", ErrIndex, i)
	}
	return c.Nodes[i], nil
}

func (c *Config) Channel(i int) (*ConfigChannel, error) {
	if i < 0 || i >= ChannelCount {
		return nil, fmt.Errorf("%w: channel %d", ErrIndex, i)
	}
	return c.Channels[i], nil
}

// Header fetches the required zone and decodes it.
func (c *Config) Header(ctx context.Context, useCache bool) (Header, error) {
	if err := c.Root().Require(ctx, useCache); err != nil {
		return Header{}, err
	}
	return Header{
		Version:      c.Version.Peek(),
		NodeCount:    c.NodeCount.Peek(),
		ChannelCount: c.ChannelCount.Peek(),
		TimeZone:     c.TimeZone.peek(),
	}, nil
}

// SetTimeZone writes the whole time zone block in one transfer.
func (c *Config) SetTimeZone(ctx context.Context, tz TimeZone) error {
	f := c.TimeZone
	if err := errors.Join(
		f.UTCOffset.Store(tz.UTCOffset),
		f.DaylightDelta.Store(tz.DaylightDelta),
		f.Start.store(tz.Start),
		f.End.store(tz.End),
	); err != nil {
		return err
	}
	return f.Update(ctx, false)
}

func (tz TimeZoneFields) peek() TimeZone {
	return TimeZone{
		UTCOffset:     tz.UTCOffset.Peek(),
		DaylightDelta: tz.DaylightDelta.Peek(),
		Start:         tz.Start.peek(),
		End:           tz.End.peek(),
	}
}

func (t TransitionFields) peek() Transition {
	return Transition{
		Time:  t.Time.Peek(),
		Month: t.Month.Peek(),
		Day:   t.Day.Peek(),
		Week:  t.Week.Peek(),
	}
}

// store only touches the local buffer.
func (t TransitionFields) store(v Transition) error {
	return errors.Join(
		t.Time.Store(v.Time),
		t.Month.Store(v.Month),
		t.Day.Store(v.Day),
		t.Week.Store(v.Week),
	)
}

// Info fetches the whole node record.
func (n *ConfigNode) Info(ctx context.Context, useCache bool) (NodeInfo, error) {
	if err := n.Require(ctx, useCache); err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{
		Address: AddressFrom(n.AddrLow.Peek(), n.AddrHigh.Peek()),
		Channel: n.Channel.Peek(),
		Name:    n.Name.Peek(),
	}, nil
}

// SetInfo writes the whole node record in one transfer.
func (n *ConfigNode) SetInfo(ctx context.Context, info NodeInfo) error {
	low, high := info.Address.Split()
	if err := errors.Join(
		n.AddrLow.Store(low),
		n.AddrHigh.Store(high),
		n.Channel.Store(info.Channel),
		n.Name.Store(info.Name),
	); err != nil {
		return err
	}
	return n.Update(ctx, false)
}

func (c *ConfigChannel) Info(ctx context.Context, useCache bool) (ChannelInfo, error) {
	if err := c.Require(ctx, useCache); err != nil {
		return ChannelInfo{}, err
	}
	return ChannelInfo{
		Function: ChannelFunction(c.Function.Peek()),
		Name:     c.Name.Peek(),
	}, nil
}

func (c *ConfigChannel) SetInfo(ctx context.Context, info ChannelInfo) error {
	if err := errors.Join(c.Function.Store(uint8(info.Function)), c.Name.Store(info.Name)); err != nil {
		return err
	}
	return c.Update(ctx, false)
}
