// Command yoopd is the reference CLI for Yoop/LocalDrop: share and
// receive files over a LAN by 4-character code, keep a directory synced
// between two devices, and manage the trust store and transfer history
// that back those flows.
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDataDir  string
	flagLogLevel string

	current *app
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "yoopd",
		Short:         "peer-to-peer LAN file and clipboard transfer",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagDataDir, flagLogLevel)
			if err != nil {
				return err
			}
			current = a
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Yoop data directory (default: ~/.yoop)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(
		newShareCmd(),
		newReceiveCmd(),
		newSyncCmd(),
		newClipCmd(),
		newDiscoverCmd(),
		newTrustCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

