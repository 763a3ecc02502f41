package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/breakpoint"
	"github.com/tanq16/rangedl/internal/output"
)

func newCleanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean [FILE]",
		Short: "Delete breakpoints so the next download starts fresh",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("provide a destination file or --all")
			}
			dir := cfg.OutputDir
			if len(args) > 0 {
				dir = filepath.Dir(args[0])
			}
			store, closeStore, err := openStore(cfg, dir)
			if err != nil {
				return err
			}
			defer closeStore()

			var keys []string
			if all {
				if keys, err = store.Keys(); err != nil {
					return err
				}
			} else {
				keys = []string{breakpoint.Key(filepath.Base(args[0]))}
			}
			removed := 0
			for _, key := range keys {
				if !store.Exists(key) {
					continue
				}
				if err := store.Delete(key); err != nil {
					output.PrintError(fmt.Sprintf("Error removing %s: %v", key, err))
					continue
				}
				output.PrintDetail(fmt.Sprintf("Removed %s", key))
				removed++
			}
			if removed == 0 {
				output.PrintInfo("Nothing to remove")
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d breakpoint(s)", removed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every breakpoint in the store")
	return cmd
}
