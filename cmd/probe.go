package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/downloaders"
	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/orchestrator"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [URL]",
		Short: "Show the size and file name a download would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := args[0]
			registry := downloaders.NewRegistry(cfg.HTTPClientConfig(), cfg.S3ClientConfig())
			src, err := registry.Lookup(cmd.Context(), rawURL)
			if err != nil {
				return err
			}
			size, err := orchestrator.ProbeSize(cmd.Context(), src, rawURL, cfg.ProbeAttempts)
			if err != nil {
				return err
			}
			name := orchestrator.FileNameFromURL(rawURL)
			output.PrintHeader(rawURL)
			fmt.Printf("  %s %s\n", output.FDebug("size"), output.FInfo(fmt.Sprintf("%s (%d bytes)", utils.FormatBytes(size), size)))
			fmt.Printf("  %s %s\n", output.FDebug("file"), output.FInfo(name))
			if h, ok := src.(*rangehttp.Source); ok {
				if info, err := h.Inspect(cmd.Context(), rawURL); err == nil {
					if info.FileName != "" && info.FileName != name {
						fmt.Printf("  %s %s\n", output.FDebug("server name"), output.FDetail(info.FileName))
					}
					ranges := output.FSuccess("supported")
					if !info.RangeSupported {
						ranges = output.FWarning("not advertised, only one segment is safe")
					}
					fmt.Printf("  %s %s\n", output.FDebug("ranges"), ranges)
				}
			}
			return nil
		},
	}
}
