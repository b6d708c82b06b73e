package main

import (
	"os"

	"github.com/spf13/cobra"

	"quill/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "quillc",
	Short: "Quill language lowering toolchain",
	Long:  `quillc lowers typed Quill modules into QIR and inspects the result`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(conventionsCmd)
	rootCmd.AddCommand(selfcheckCmd)
	rootCmd.AddCommand(cacheCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
