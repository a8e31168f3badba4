package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/spf13/cobra"
)

func (a *app) uptimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uptime",
		Short: "Print the hub uptime in seconds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			up, err := s.Uptime(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), up)
			return nil
		},
	}
}

func (a *app) readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <region> <offset> <length>",
		Short: "Read raw register bytes as hex",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := command.ParseRegion(args[0])
			if err != nil {
				return err
			}
			offset, err := parseU16("offset", args[1])
			if err != nil {
				return err
			}
			length, err := parseU16("length", args[2])
			if err != nil {
				return err
			}
			if int(length) > command.MaxReadLength {
				return fmt.Errorf("length %d exceeds %d", length, command.MaxReadLength)
			}
			s, done, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			data, err := s.ReadMemory(cmd.Context(), region, offset, length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
			return nil
		},
	}
}

func (a *app) writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <region> <offset> <hex>",
		Short: "Write raw register bytes given as hex",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := command.ParseRegion(args[0])
			if err != nil {
				return err
			}
			offset, err := parseU16("offset", args[1])
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(args[2])
			if err != nil {
				return fmt.Errorf("parse data: %w", err)
			}
			if len(data) > command.MaxWriteLength {
				return fmt.Errorf("data length %d exceeds %d", len(data), command.MaxWriteLength)
			}
			s, done, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			if err := s.WriteMemory(cmd.Context(), region, offset, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s+%d\n", len(data), region, offset)
			return nil
		},
	}
}

func parseU16(name, raw string) (uint16, error) {
	v, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return uint16(v), nil
}

func parseIndex(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse index: %w", err)
	}
	return v, nil
}
