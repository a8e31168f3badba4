package device

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/thermoctl/internal/thermo"
)

// Fixture is the initial configuration loaded into a simulated hub.
type Fixture struct {
	Version  uint8
	TimeZone thermo.TimeZone
	Nodes    []thermo.NodeInfo
	Channels []thermo.ChannelInfo
}

// Apply writes f through the thermo layouts and clears every reading to the
// no-value sentinel.
func (m *Memory) Apply(ctx context.Context, f Fixture) error {
	if len(f.Nodes) > thermo.NodeCount {
		return fmt.Errorf("%w: %d nodes", thermo.ErrIndex, len(f.Nodes))
	}
	if len(f.Channels) > thermo.ChannelCount {
		return fmt.Errorf("%w: %d channels", thermo.ErrIndex, len(f.Channels))
	}
	cfg, err := thermo.NewConfig(m)
	if err != nil {
		return err
	}
	st, err := thermo.NewState(m)
	if err != nil {
		return err
	}

	if err := cfg.Version.Set(ctx, max(f.Version, 1), false); err != nil {
		return err
	}
	if err := cfg.NodeCount.Set(ctx, uint8(len(f.Nodes)), false); err != nil {
		return err
	}
	if err := cfg.ChannelCount.Set(ctx, uint8(len(f.Channels)), false); err != nil {
		return err
	}
	if err := cfg.SetTimeZone(ctx, f.TimeZone); err != nil {
		return err
	}
	for i, n := range f.Nodes {
		if err := cfg.Nodes[i].SetInfo(ctx, n); err != nil {
			return err
		}
	}
	for i, c := range f.Channels {
		if err := cfg.Channels[i].SetInfo(ctx, c); err != nil {
			return err
		}
	}

	var errs []error
	for _, n := range st.Nodes {
		errs = append(errs,
			n.LastUpdate.Store(0),
			n.Temperature.Store(math.NaN()),
			n.Voltage.Store(math.NaN()),
		)
	}
	for _, c := range st.Channels {
		errs = append(errs, c.Temperature.Store(math.NaN()))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	readings := st.Root().Span()
	readings.Start = st.Nodes[0].Span().Start
	return st.Update(ctx, false, readings)
}
