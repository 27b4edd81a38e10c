package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/qr"
	"github.com/sanchxt/yoop-sub002/session"
	"github.com/sanchxt/yoop-sub002/syncengine"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "keep a directory in sync with a peer's copy of it",
	}
	cmd.AddCommand(newSyncHostCmd(), newSyncJoinCmd())
	return cmd
}

func newSyncHostCmd() *cobra.Command {
	var (
		exclude    []string
		deletions  bool
		resolution string
		cachePath  string
		expire     time.Duration
		showQR     bool
	)
	cmd := &cobra.Command{
		Use:   "host <dir>",
		Short: "offer a directory for two-way sync and mint a code for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := parseResolution(resolution)
			if err != nil {
				return err
			}

			cfg := syncConfigFrom(args[0], exclude, deletions, strategy, cachePath, expire)
			s, err := session.NewSyncHostSession(current.node, cfg, current.resumeMgr)
			if err != nil {
				return fmt.Errorf("start sync session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "code: %s\n", s.Code().String())
			if showQR {
				ascii, err := qr.ASCII(s.Code().String())
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), ascii)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.RunHost(ctx)
		},
	}
	addSyncFlags(cmd, &exclude, &deletions, &resolution, &cachePath)
	cmd.Flags().DurationVar(&expire, "expire", 10*time.Minute, "how long the code stays valid if no peer joins")
	cmd.Flags().BoolVar(&showQR, "qr", false, "also print the code as an ASCII QR code")
	return cmd
}

func newSyncJoinCmd() *cobra.Command {
	var (
		exclude    []string
		deletions  bool
		resolution string
		cachePath  string
		direct     string
		findFor    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "join <code> <dir>",
		Short: "join a two-way sync session offered by a peer's code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := parseResolution(resolution)
			if err != nil {
				return err
			}

			cfg := syncConfigFrom(args[1], exclude, deletions, strategy, cachePath, 0)
			cfg.DirectAddr = direct
			cfg.FindTimeout = findFor

			s, err := session.NewSyncJoinSession(current.node, cfg, current.resumeMgr)
			if err != nil {
				return fmt.Errorf("start sync session: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.RunJoin(ctx, args[0])
		},
	}
	addSyncFlags(cmd, &exclude, &deletions, &resolution, &cachePath)
	cmd.Flags().StringVar(&direct, "direct", "", "connect directly to host:port, skipping LAN discovery")
	cmd.Flags().DurationVar(&findFor, "find-timeout", 15*time.Second, "how long to scan the LAN for the code")
	return cmd
}

func addSyncFlags(cmd *cobra.Command, exclude *[]string, deletions *bool, resolution *string, cachePath *string) {
	cmd.Flags().StringSliceVar(exclude, "exclude", nil, "glob patterns to exclude from sync")
	cmd.Flags().BoolVar(deletions, "sync-deletions", true, "propagate deletions between peers")
	cmd.Flags().StringVar(resolution, "on-conflict", "newer-wins", "conflict resolution: newer-wins|larger-wins|local-wins|remote-wins|keep-both")
	cmd.Flags().StringVar(cachePath, "index-cache", "", "path to persist the index across restarts (default: none)")
}

func syncConfigFrom(dir string, exclude []string, deletions bool, strategy syncengine.ResolutionStrategy, cachePath string, expire time.Duration) session.SyncConfig {
	return session.SyncConfig{
		SyncRoot:        dir,
		ExcludePatterns: exclude,
		SyncDeletions:   deletions,
		Resolution:      strategy,
		CachePath:       cachePath,
		PortRange: session.TransferPortRange{
			Start: current.cfg.Network.TransferPortStart,
			End:   current.cfg.Network.TransferPortEnd,
		},
		Expire: expire,
	}
}

func parseResolution(s string) (syncengine.ResolutionStrategy, error) {
	switch s {
	case "newer-wins", "":
		return syncengine.ResolutionNewerWins, nil
	case "larger-wins":
		return syncengine.ResolutionLargerWins, nil
	case "local-wins":
		return syncengine.ResolutionLocalWins, nil
	case "remote-wins":
		return syncengine.ResolutionRemoteWins, nil
	case "keep-both":
		return syncengine.ResolutionKeepBoth, nil
	default:
		return 0, fmt.Errorf("unknown conflict resolution %q", s)
	}
}
