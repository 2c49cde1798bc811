package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show the compute device the configuration resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			dev, n, err := selectDevice(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "device=%s devices=%d provider=%s\n", dev, n, dev.ExecutionProvider())
			return err
		},
	}
}
