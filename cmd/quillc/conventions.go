package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/convention"
)

var conventionsFile string

func init() {
	conventionsCmd.Flags().StringVar(&conventionsFile, "file", "", "TOML file overriding the built-in argument layout")
}

var conventionsCmd = &cobra.Command{
	Use:   "conventions",
	Short: "Print the active argument-placement table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := convention.Default()
		if conventionsFile != "" {
			var err error
			table, err = convention.Load(conventionsFile)
			if err != nil {
				return err
			}
		}
		if err := table.Validate(); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), table.Dump())
		return nil
	},
}
