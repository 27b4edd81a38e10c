package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "list codes currently being offered on the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := discovery.NewScanner(current.log)
			peers, err := scanner.ScanFor(context.Background(), window)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if len(peers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no codes seen in the scan window")
				return nil
			}
			for _, p := range peers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s  %s  via %s\n", p.Code, p.DeviceName, p.Addr, p.Via)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 5*time.Second, "how long to listen before reporting results")
	return cmd
}
