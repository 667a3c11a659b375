package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"healthd-ng/internal/config"
	"healthd-ng/internal/rpc"
)

type clientFlags struct {
	socket  string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.socket, "socket", config.DefaultSocket, "RPC socket of the running service")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "Call timeout")
}

func (f *clientFlags) dial(ctx context.Context) (*rpc.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	c, err := rpc.Dial(ctx, f.socket)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return c, ctx, cancel, nil
}

func newGetCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print whether battery charging is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := f.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			v, err := c.GetChargingEnabled(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), onOff(v))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newSetCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "set on|off",
		Short: "Enable or disable battery charging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			c, ctx, cancel, err := f.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			if err := c.SetChargingEnabled(ctx, v); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), onOff(v))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: want on or off", s)
	}
	return v, nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
