package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"healthd-ng/internal/charging"
)

// osFs is swapped out by tests.
var osFs = afero.NewOsFs()

func newNodesCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List candidate charging nodes and which one this device would bind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			reg := cfg.Charging.Registry()
			if err := reg.Validate(); err != nil {
				return err
			}

			nio := charging.DefaultIO(osFs)
			idx, _ := reg.Resolve(nio, nil)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNODE\tTRUE\tFALSE\tSTATE")
			for i, n := range reg {
				state := "missing"
				switch {
				case i == idx:
					state = "bound"
				case idx >= 0 && i > idx:
					state = "not probed"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, n, n.TrueToken, n.FalseToken, state)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if idx < 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no node found: charging control unsupported on this device")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config (built-in defaults when empty)")
	return cmd
}
