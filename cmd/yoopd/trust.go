package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/trust"
)

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "inspect and manage the paired-device trust store",
	}
	cmd.AddCommand(
		newTrustListCmd(),
		newTrustSetLevelCmd("block", trust.LevelBlocked, "block a device, rejecting future transfers from it"),
		newTrustSetLevelCmd("unblock", trust.LevelNormal, "restore a blocked device to normal trust"),
		newTrustSetLevelCmd("pin", trust.LevelPinned, "mark a device as explicitly pinned"),
		newTrustRemoveCmd(),
	)
	return cmd
}

func newTrustListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every device this node has ever seen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := current.node.Trust.List()
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no devices seen yet")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tlast seen %s\n",
					d.DeviceID, d.DeviceName, d.TrustLevel, d.LastSeen.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newTrustSetLevelCmd(use string, level trust.Level, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <device-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return current.node.Trust.SetTrustLevel(args[0], level)
		},
	}
}

func newTrustRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device-id>",
		Short: "forget a device entirely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return current.node.Trust.Remove(args[0])
		},
	}
}
