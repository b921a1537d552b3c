// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the GameAPI CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gameapi",
		Short: "GameAPI - account service for the game backend",
		Long: `GameAPI serves account registration, login and credential
changes backed by PostgreSQL, with signed session tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedTokenCmd())

	return cmd
}
