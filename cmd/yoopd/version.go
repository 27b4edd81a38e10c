package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the running yoopd version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), currentVersion.String())
			if !current.cfg.Update.AutoCheck {
				fmt.Fprintln(cmd.OutOrStdout(), "update checks disabled (update.auto_check = false)")
			}
			return nil
		},
	}
}
