package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/standalone-transfer/xfer/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), version.GetVersionInfo())
			return nil
		},
	}
}
