package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/ircache"
)

var cacheDirFlag string

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheDirFlag, "dir", "", "cache directory (defaults to the user cache)")
	cacheCmd.AddCommand(cacheDropCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the lowering summary cache",
}

var cacheDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete every stored lowering summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		if err := c.DropAll(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache dropped")
		return nil
	},
}

func openCache() (*ircache.Cache, error) {
	if cacheDirFlag != "" {
		return ircache.OpenAt(cacheDirFlag)
	}
	return ircache.Open("quill")
}
