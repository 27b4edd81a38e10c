package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "inspect or (re)initialize the local configuration file",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigSetPinCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "print the configuration currently in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := toml.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(current.cfg)
		},
	}
}

func newConfigSetPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-pin <pin>",
		Short: "hash and store a PIN, and require it on future receives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := config.HashPIN(args[0])
			if err != nil {
				return err
			}
			current.cfg.Security.PinHash = hash
			current.cfg.Security.RequirePin = true
			if err := config.Save(config.DefaultPath(current.dataDir), current.cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pin saved; future receives will require it")
			return nil
		},
	}
}
