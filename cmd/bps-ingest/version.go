// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of bps-ingest",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bps-ingest %s (document schema %s)\n", version, types.SchemaVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
