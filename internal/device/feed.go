package device

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/thermoctl/internal/thermo"
	"github.com/rs/zerolog/log"
)

// Feed writes synthetic sensor readings into State the way the radio
// receiver does: per-node samples, then per-channel aggregates.
type Feed struct {
	mem   *Memory
	cfg   *thermo.Config
	st    *thermo.State
	rng   *rand.Rand
	temps [thermo.NodeCount]float64
	volts [thermo.NodeCount]float64
}

func NewFeed(mem *Memory, seed int64) (*Feed, error) {
	cfg, err := thermo.NewConfig(mem)
	if err != nil {
		return nil, err
	}
	st, err := thermo.NewState(mem)
	if err != nil {
		return nil, err
	}
	f := &Feed{mem: mem, cfg: cfg, st: st, rng: rand.New(rand.NewSource(seed))}
	for i := range f.temps {
		f.temps[i] = 19 + 4*f.rng.Float64()
		f.volts[i] = 2.95 + 0.05*f.rng.Float64()
	}
	return f, nil
}

// Step samples every configured node once and refreshes channel aggregates.
func (f *Feed) Step(ctx context.Context) error {
	count, err := f.cfg.NodeCount.Get(ctx, false)
	if err != nil {
		return err
	}
	n := min(int(count), thermo.NodeCount)
	uptime := f.mem.Uptime()

	var bound [thermo.ChannelCount][]float64
	for i := 0; i < n; i++ {
		f.temps[i] += f.rng.NormFloat64() * 0.1
		f.volts[i] = math.Max(2.6, f.volts[i]-0.0005*f.rng.Float64())

		node := f.st.Nodes[i]
		if err := errors.Join(
			node.LastUpdate.Store(uptime),
			node.Temperature.Store(f.temps[i]),
			node.Voltage.Store(f.volts[i]),
		); err != nil {
			return err
		}
		if err := node.Update(ctx, false); err != nil {
			return err
		}

		ch, err := f.cfg.Nodes[i].Channel.Get(ctx, false)
		if err != nil {
			return err
		}
		if int(ch) < thermo.ChannelCount {
			bound[ch] = append(bound[ch], f.st.Nodes[i].Temperature.Peek())
		}
	}

	for c := range bound {
		if len(bound[c]) == 0 {
			continue
		}
		info, err := f.cfg.Channels[c].Info(ctx, false)
		if err != nil {
			return err
		}
		if err := f.st.Channels[c].Temperature.Set(ctx, info.Function.Apply(bound[c]), false); err != nil {
			return err
		}
	}
	return nil
}

// Run steps every interval until ctx ends.
func (f *Feed) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Step(ctx); err != nil {
				log.Error().Err(err).Msg("device: feed step failed")
			}
		}
	}
}
