package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "list past transfers, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := current.history.List(limit)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no transfers recorded yet")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %-9s %-6s %3d file(s)  %s\n",
					e.FormattedTimestamp(), e.Direction, e.State, e.Code, len(e.Files), formatBytes(e.TotalBytes))
				if e.ErrorMessage != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "    error: %s\n", *e.ErrorMessage)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries to show (0 = all)")
	return cmd
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
