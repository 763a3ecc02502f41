package cmd

import (
	"fmt"

	"github.com/tanq16/rangedl/internal/breakpoint"
	"github.com/tanq16/rangedl/internal/config"
)

type breakpointStore interface {
	breakpoint.Store
	Keys() ([]string, error)
}

// openStore returns the configured breakpoint store. File breakpoints live
// beside the destination unless a directory is configured.
func openStore(c *config.Config, destDir string) (breakpointStore, func() error, error) {
	switch c.Breakpoint.Backend {
	case "badger":
		s, err := breakpoint.OpenBadgerStore(c.Breakpoint.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "file", "":
		dir := c.Breakpoint.Dir
		if dir == "" {
			dir = destDir
		}
		return breakpoint.NewFileStore(dir), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown breakpoint backend %q", c.Breakpoint.Backend)
	}
}
