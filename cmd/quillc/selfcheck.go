package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/convention"
	"quill/internal/diag"
	"quill/internal/ir"
	"quill/internal/ircache"
	"quill/internal/irgen"
	"quill/internal/types"
)

var (
	selfcheckParallel bool
	selfcheckNoDump   bool
	selfcheckCacheDir string
	selfcheckLayout   string
)

func init() {
	selfcheckCmd.Flags().BoolVar(&selfcheckParallel, "parallel", false, "emit declarations concurrently")
	selfcheckCmd.Flags().BoolVar(&selfcheckNoDump, "no-dump", false, "skip printing the lowered module")
	selfcheckCmd.Flags().StringVar(&selfcheckCacheDir, "cache-dir", "", "store the lowering summary under this directory")
	selfcheckCmd.Flags().StringVar(&selfcheckLayout, "layout", "", "TOML file overriding the built-in argument layout")
}

var selfcheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Lower a built-in demo module and verify the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := convention.Default()
		if selfcheckLayout != "" {
			var err error
			table, err = convention.Load(selfcheckLayout)
			if err != nil {
				return err
			}
		}

		in := types.NewInterner()
		bag := diag.NewBag(100)
		em := irgen.NewModuleEmitter(in, table, diag.BagReporter{Bag: bag}, "selfcheck")

		mod := demoModule(in)
		emit := em.EmitModule
		if selfcheckParallel {
			emit = em.EmitModuleParallel
		}
		if err := emit(mod); err != nil {
			return err
		}

		bag.Sort()
		for _, d := range bag.Items() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s)\n", d.Code, d.Message, d.Primary)
			for _, n := range d.Notes {
				fmt.Fprintf(cmd.ErrOrStderr(), "  note: %s (%s)\n", n.Msg, n.Span)
			}
		}
		if bag.HasErrors() {
			return fmt.Errorf("selfcheck produced %d diagnostics", bag.Len())
		}

		if errs := ir.Validate(em.Module); len(errs) != 0 {
			for _, err := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", err)
			}
			return fmt.Errorf("lowered module failed validation")
		}

		if selfcheckCacheDir != "" {
			c, err := ircache.OpenAt(selfcheckCacheDir)
			if err != nil {
				return err
			}
			input := ircache.DigestBytes([]byte(mod.Name))
			if err := c.Put(input, ircache.Summarize(em.Module, in, input)); err != nil {
				return err
			}
		}

		if !selfcheckNoDump {
			return ir.DumpModule(cmd.OutOrStdout(), em.Module, in, ir.DumpOptions{})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selfcheck ok: %d functions\n", em.Module.NumFuncs())
		return nil
	},
}
