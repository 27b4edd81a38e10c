package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/clipboard/clipboardos"
	"github.com/sanchxt/yoop-sub002/qr"
	"github.com/sanchxt/yoop-sub002/session"
)

func newClipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clip",
		Short: "keep the OS clipboard live-synced with a peer",
	}
	cmd.AddCommand(newClipHostCmd(), newClipJoinCmd())
	return cmd
}

func newClipHostCmd() *cobra.Command {
	var (
		expire time.Duration
		showQR bool
	)
	cmd := &cobra.Command{
		Use:   "host",
		Short: "offer a live clipboard link and mint a code for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := session.ClipboardConfig{
				PortRange: session.TransferPortRange{
					Start: current.cfg.Network.TransferPortStart,
					End:   current.cfg.Network.TransferPortEnd,
				},
				Expire: expire,
			}
			s, err := session.NewClipboardHostSession(current.node, cfg, clipboardos.New(), current.resumeMgr)
			if err != nil {
				return fmt.Errorf("start clipboard session: %w", err)
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
	cmd.Flags().DurationVar(&expire, "expire", 10*time.Minute, "how long the code stays valid if no peer joins")
	cmd.Flags().BoolVar(&showQR, "qr", false, "also print the code as an ASCII QR code")
	return cmd
}

func newClipJoinCmd() *cobra.Command {
	var (
		direct  string
		findFor time.Duration
	)
	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "join a live clipboard link offered by a peer's code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := session.ClipboardConfig{
				PortRange: session.TransferPortRange{
					Start: current.cfg.Network.TransferPortStart,
					End:   current.cfg.Network.TransferPortEnd,
				},
				DirectAddr:  direct,
				FindTimeout: findFor,
			}
			s, err := session.NewClipboardJoinSession(current.node, cfg, clipboardos.New(), current.resumeMgr)
			if err != nil {
				return fmt.Errorf("start clipboard session: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.RunJoin(ctx, args[0])
		},
	}
	cmd.Flags().StringVar(&direct, "direct", "", "connect directly to host:port, skipping LAN discovery")
	cmd.Flags().DurationVar(&findFor, "find-timeout", 15*time.Second, "how long to scan the LAN for the code")
	return cmd
}
