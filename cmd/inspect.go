package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/breakpoint"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [FILE]",
		Short: "Show the breakpoint recorded for a destination file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cfg, filepath.Dir(args[0]))
			if err != nil {
				return err
			}
			defer closeStore()

			key := breakpoint.Key(filepath.Base(args[0]))
			records, err := store.Load(key)
			if errors.Is(err, breakpoint.ErrNotFound) {
				output.PrintWarning(fmt.Sprintf("No breakpoint for %s", args[0]))
				return nil
			}
			if err != nil {
				return err
			}
			output.PrintHeader(fmt.Sprintf("%s (%d segments)", key, len(records)))
			var ready, total int64
			for i, r := range records {
				if r.IsEmpty() {
					fmt.Printf("  %s %s\n", output.FDebug(fmt.Sprintf("%2d", i)), output.FDebug("empty"))
					continue
				}
				size := r.End - r.Start
				ready += r.Ready
				total += size
				fmt.Printf("  %s %s %s\n",
					output.FDebug(fmt.Sprintf("%2d", i)),
					output.PrintProgressBar(r.Ready, size, 20),
					output.FInfo(fmt.Sprintf("[%d, %d) %s / %s", r.Start, r.End, utils.FormatBytes(r.Ready), utils.FormatBytes(size))))
			}
			if len(records) > 0 {
				fmt.Printf("  %s %s\n", output.FDebug("source"), output.FDetail(records[len(records)-1].URL))
			}
			output.PrintSuccess(fmt.Sprintf("%s of %s already downloaded", utils.FormatBytes(ready), utils.FormatBytes(total)))
			return nil
		},
	}
}
