package main

import (
	"os/signal"
	"syscall"

	"github.com/danmuck/thermoctl/internal/auth"
	"github.com/danmuck/thermoctl/internal/gateway"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway in front of the hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if listen != "" {
				a.cfg.Gateway.Addr = listen
			}
			s, done, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer done()

			g, err := gateway.New(a.cfg.Name, a.cfg.Gateway.Addr, s, a.cfg.Gateway.CorsOrigins)
			if err != nil {
				return err
			}
			if a.cfg.Gateway.Token != "" {
				g.RequireToken(auth.StaticToken{Token: a.cfg.Gateway.Token})
			}
			return g.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "gateway listen address override")
	return cmd
}
