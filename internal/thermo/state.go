package thermo

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/thermoctl/internal/memory"
	"github.com/danmuck/thermoctl/internal/protocol/command"
)

const StateSize = 276

type StateNode struct {
	*memory.Container
	LastUpdate  *memory.Field[uint32]
	Temperature *memory.Field[float64]
	Voltage     *memory.Field[float64]
}

type StateChannel struct {
	*memory.Container
	Temperature *memory.Field[float64]
}

// State is the bound State region. Its required zone is the clock shift.
type State struct {
	*memory.Region
	TimeShift *memory.Field[uint32]
	Nodes     [NodeCount]*StateNode
	Channels  [ChannelCount]*StateChannel
}

func NewState(backend memory.Backend) (*State, error) {
	b := memory.NewBuilder(4)
	s := &State{}
	s.TimeShift = memory.Uint32(b)
	b.MarkRequired()
	for i := range s.Nodes {
		n := &StateNode{Container: b.Open(4)}
		n.LastUpdate = memory.Uint32(b)
		n.Temperature = memory.Decimal(b)
		n.Voltage = memory.Decimal(b)
		b.Close()
		s.Nodes[i] = n
	}
	for i := range s.Channels {
		c := &StateChannel{Container: b.Open(2)}
		c.Temperature = memory.Decimal(b)
		b.Close()
		s.Channels[i] = c
	}
	r, err := b.Finish(command.RegionState, backend)
	if err != nil {
		return nil, err
	}
	if r.Size() != StateSize {
		return nil, fmt.Errorf("thermo: state layout is %d bytes, want %d", r.Size(), StateSize)
	}
	s.Region = r
	return s, nil
}

func (s *State) Node(i int) (*StateNode, error) {
	if i < 0 || i >= NodeCount {
		return nil, fmt.Errorf("%w: node %d", ErrIndex, i)
	}
	return s.Nodes[i], nil
}

func (s *State) Channel(i int) (*StateChannel, error) {
	if i < 0 || i >= ChannelCount {
		return nil, fmt.Errorf("%w: channel %d", ErrIndex, i)
	}
	return s.Channels[i], nil
}

// Reading fetches node i and resolves its last update against the clock
// shift. A zero shift means the clock was never synced; LastUpdate is then
// left zero.
func (s *State) Reading(ctx context.Context, i int, useCache bool) (NodeReading, error) {
	n, err := s.Node(i)
	if err != nil {
		return NodeReading{}, err
	}
	shift, err := s.TimeShift.Get(ctx, true)
	if err != nil {
		return NodeReading{}, err
	}
	if err := n.Require(ctx, useCache); err != nil {
		return NodeReading{}, err
	}
	r := NodeReading{
		Uptime:      n.LastUpdate.Peek(),
		Temperature: n.Temperature.Peek(),
		Voltage:     n.Voltage.Peek(),
	}
	if shift != 0 {
		r.LastUpdate = time.Unix(int64(shift)+int64(r.Uptime), 0).UTC()
	}
	return r, nil
}

func (s *State) ChannelReading(ctx context.Context, i int, useCache bool) (ChannelReading, error) {
	c, err := s.Channel(i)
	if err != nil {
		return ChannelReading{}, err
	}
	t, err := c.Temperature.Get(ctx, useCache)
	if err != nil {
		return ChannelReading{}, err
	}
	return ChannelReading{Temperature: t}, nil
}
