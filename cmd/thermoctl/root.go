package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/danmuck/thermoctl/internal/config"
	"github.com/danmuck/thermoctl/internal/link/netlink"
	"github.com/danmuck/thermoctl/internal/logging"
	"github.com/danmuck/thermoctl/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Environment overrides, usually supplied through a .env file.
const (
	EnvConfig = "THERMOCTL_CONFIG"
	EnvDevice = "THERMOCTL_DEVICE"
	EnvToken  = "THERMOCTL_GATEWAY_TOKEN"
)

type app struct {
	cfgPath string
	envPath string
	addr    string
	cfg     config.ClientConfig
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "thermoctl",
		Short:         "Inspect and configure a temperature hub over its register link.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "client config path (env "+EnvConfig+")")
	root.PersistentFlags().StringVar(&a.envPath, "env", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&a.addr, "device", "", "hub address override (env "+EnvDevice+")")

	root.AddCommand(
		a.uptimeCmd(),
		a.readCmd(),
		a.writeCmd(),
		a.headerCmd(),
		a.nodeCmd(),
		a.channelCmd(),
		a.stateCmd(),
		a.syncClockCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) setup() error {
	if err := godotenv.Load(a.envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.envPath, err)
	}
	logging.ConfigureRuntime()

	path := a.cfgPath
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	a.cfg = config.DefaultClientConfig()
	if path != "" {
		cfg, err := config.LoadClientConfig(path)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	addr := a.addr
	if addr == "" {
		addr = strings.TrimSpace(os.Getenv(EnvDevice))
	}
	if addr != "" {
		a.cfg.Device.Addr = addr
	}
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		a.cfg.Gateway.Token = token
	}
	return nil
}

// connect opens a session to the configured hub. The returned func closes it.
func (a *app) connect(ctx context.Context) (*session.Session, func(), error) {
	l, err := netlink.New(a.cfg.Device.Link())
	if err != nil {
		return nil, nil, err
	}
	s, err := session.New(l, a.cfg.Session.Session())
	if err != nil {
		return nil, nil, err
	}
	s.SetObserver(session.ObserverFunc(func(st session.Step) {
		log.Warn().
			Int("remaining", st.Remaining).
			Str("action", st.Action.String()).
			Dur("delay", st.Delay).
			AnErr("err", st.Err).
			Msg("thermoctl: recovering link")
	}))
	if err := s.Open(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("open %s: %w", a.cfg.Device.Addr, err)
	}
	log.Debug().Str("session", s.ID()).Str("device", a.cfg.Device.Addr).Msg("thermoctl: session open")
	return s, func() { _ = s.Close() }, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
