package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/config"
	"github.com/sanchxt/yoop-sub002/history"
	"github.com/sanchxt/yoop-sub002/session"
	"github.com/sanchxt/yoop-sub002/wire"
)

func newReceiveCmd() *cobra.Command {
	var (
		outputDir  string
		direct     string
		findFor    time.Duration
		sequential bool
		preferMDNS bool
		yesToAll   bool
		pin        string
	)
	cmd := &cobra.Command{
		Use:   "receive <code>",
		Short: "pull files from a peer offering the given code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				var err error
				outputDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			cfg := session.ReceiveConfig{
				OutputDir:       outputDir,
				FindTimeout:     findFor,
				DirectAddr:      direct,
				Sequential:      sequential,
				PreferMDNS:      preferMDNS,
				RequirePIN:      current.cfg.Security.RequirePin,
				PIN:             pin,
				VerifyPIN:       func(p string) bool { return config.VerifyPIN(current.cfg.Security.PinHash, p) },
				RequireApproval: current.cfg.Security.RequireApproval && !yesToAll,
				Approve: func(manifest wire.Manifest, peerName string) bool {
					return promptApprove(cmd, manifest, peerName)
				},
			}
			r := session.NewReceiveSession(current.node, cfg, current.resumeMgr)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			started := time.Now()
			runErr := r.Run(ctx, args[0])

			entry := history.Entry{
				Direction:    history.DirectionReceived,
				Code:         args[0],
				OutputDir:    &outputDir,
				State:        history.StateCompleted,
				DurationSecs: time.Since(started).Seconds(),
			}
			if runErr != nil {
				entry.State = history.StateFailed
				msg := runErr.Error()
				entry.ErrorMessage = &msg
			}
			if appendErr := current.history.Append(entry, current.cfg.History.MaxEntries); appendErr != nil {
				current.log.Warn("failed to record receive history", "error", appendErr)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write received files into (default: cwd)")
	cmd.Flags().StringVar(&direct, "direct", "", "connect directly to host:port, skipping LAN discovery")
	cmd.Flags().DurationVar(&findFor, "find-timeout", 15*time.Second, "how long to scan the LAN for the code")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "probe one discovery channel at a time instead of racing both")
	cmd.Flags().BoolVar(&preferMDNS, "prefer-mdns", false, "with --sequential, try mDNS before falling back to broadcast")
	cmd.Flags().BoolVarP(&yesToAll, "yes", "y", false, "accept the incoming manifest without prompting")
	cmd.Flags().StringVar(&pin, "pin", "", "PIN to present if the local config requires one")
	return cmd
}

// promptApprove prints the manifest's file list and asks for a y/n on
// the controlling terminal. A non-interactive stdin (closed, piped)
// reads EOF and is treated as a decline.
func promptApprove(cmd *cobra.Command, manifest wire.Manifest, peerName string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s wants to send %d file(s):\n", peerName, len(manifest.Entries))
	for _, e := range manifest.Entries {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d bytes)\n", e.Path, e.Size)
	}
	fmt.Fprint(cmd.OutOrStdout(), "accept? [y/N] ")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch line[0] {
	case 'y', 'Y':
		return true
	default:
		return false
	}
}
