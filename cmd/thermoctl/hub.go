package main

import (
	"fmt"
	"math"
	"time"

	"github.com/danmuck/thermoctl/internal/thermo"
	"github.com/spf13/cobra"
)

// withHub connects and builds both region views.
func (a *app) withHub(cmd *cobra.Command, fn func(h hub) error) error {
	s, done, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer done()
	cfg, err := thermo.NewConfig(s)
	if err != nil {
		return err
	}
	st, err := thermo.NewState(s)
	if err != nil {
		return err
	}
	return fn(hub{uptime: s, config: cfg, state: st})
}

type hub struct {
	uptime thermo.UptimeReader
	config *thermo.Config
	state  *thermo.State
}

func (a *app) headerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "header",
		Short: "Show the configuration header and time zone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHub(cmd, func(h hub) error {
				hdr, err := h.config.Header(cmd.Context(), false)
				if err != nil {
					return err
				}
				return printJSON(cmd, hdr)
			})
		},
	}
}

func (a *app) nodeCmd() *cobra.Command {
	node := &cobra.Command{
		Use:   "node",
		Short: "Show or change node configuration",
	}
	node.AddCommand(&cobra.Command{
		Use:   "show <index>",
		Short: "Show one node's address, channel and name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return a.withHub(cmd, func(h hub) error {
				n, err := h.config.Node(i)
				if err != nil {
					return err
				}
				info, err := n.Info(cmd.Context(), false)
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	})
	node.AddCommand(&cobra.Command{
		Use:   "rename <index> <name>",
		Short: "Rename a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return a.withHub(cmd, func(h hub) error {
				n, err := h.config.Node(i)
				if err != nil {
					return err
				}
				if err := n.Name.Set(cmd.Context(), args[1], false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "node %d renamed to %q\n", i, n.Name.Peek())
				return nil
			})
		},
	})

	var addr string
	var channel int
	set := &cobra.Command{
		Use:   "bind <index>",
		Short: "Bind a node address to a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			address, err := thermo.ParseAddress(addr)
			if err != nil {
				return err
			}
			if channel < 0 || channel >= thermo.ChannelCount {
				return fmt.Errorf("%w: channel %d", thermo.ErrIndex, channel)
			}
			return a.withHub(cmd, func(h hub) error {
				n, err := h.config.Node(i)
				if err != nil {
					return err
				}
				info, err := n.Info(cmd.Context(), false)
				if err != nil {
					return err
				}
				info.Address = address
				info.Channel = uint8(channel)
				if err := n.SetInfo(cmd.Context(), info); err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}
	set.Flags().StringVar(&addr, "address", "", "node radio address (aa:bb:cc:dd:ee:ff)")
	set.Flags().IntVar(&channel, "channel", 0, "channel index")
	_ = set.MarkFlagRequired("address")
	node.AddCommand(set)
	return node
}

func (a *app) channelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channel <index>",
		Short: "Show one channel's function and name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return a.withHub(cmd, func(h hub) error {
				c, err := h.config.Channel(i)
				if err != nil {
					return err
				}
				info, err := c.Info(cmd.Context(), false)
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}
}

type readingView struct {
	LastUpdate  *time.Time `json:"last_update"`
	Uptime      uint32     `json:"uptime"`
	Temperature *float64   `json:"temperature"`
	Voltage     *float64   `json:"voltage"`
	Battery     int        `json:"battery"`
}

func (a *app) stateCmd() *cobra.Command {
	var channel bool
	cmd := &cobra.Command{
		Use:   "state <index>",
		Short: "Show the latest reading of a node, or of a channel with --channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return a.withHub(cmd, func(h hub) error {
				if channel {
					r, err := h.state.ChannelReading(cmd.Context(), i, false)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]*float64{"temperature": number(r.Temperature)})
				}
				r, err := h.state.Reading(cmd.Context(), i, false)
				if err != nil {
					return err
				}
				view := readingView{
					Uptime:      r.Uptime,
					Temperature: number(r.Temperature),
					Voltage:     number(r.Voltage),
					Battery:     r.Battery(),
				}
				if !r.LastUpdate.IsZero() {
					view.LastUpdate = &r.LastUpdate
				}
				return printJSON(cmd, view)
			})
		},
	}
	cmd.Flags().BoolVar(&channel, "channel", false, "read a channel aggregate instead of a node")
	return cmd
}

func (a *app) syncClockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-clock",
		Short: "Align the hub's time shift with this host's clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHub(cmd, func(h hub) error {
				shift, err := thermo.SyncClock(cmd.Context(), h.uptime, h.state, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "time shift %d (%s)\n", shift, time.Unix(int64(shift), 0).UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
}

func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
