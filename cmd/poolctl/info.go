package main

import (
	"io"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/superpool/addrpool"
	"github.com/joshuapare/superpool/internal/reserve"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the pool manager configuration",
		Long: `The info command prints the allocation unit, the per-pool capacity
and the number of pool slots the manager supports on this platform.

Example:
  poolctl info
  poolctl info --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.OutOrStdout())
		},
	}
}

// ManagerInfo describes the manager's fixed parameters.
type ManagerInfo struct {
	Arch          string `json:"arch"`
	Supported     bool   `json:"supported"`
	SuperPageSize uint64 `json:"super_page_size"`
	MaxUnits      int    `json:"max_units"`
	MaxPoolSize   uint64 `json:"max_pool_size"`
	PoolSlots     int    `json:"pool_slots"`
	OSPageSize    uint64 `json:"os_page_size"`
}

func managerInfo() ManagerInfo {
	cfg := addrpool.DefaultConfig
	return ManagerInfo{
		Arch:          runtime.GOARCH,
		Supported:     addrpool.Supported,
		SuperPageSize: uint64(cfg.SuperPageSize),
		MaxUnits:      addrpool.MaxUnits,
		MaxPoolSize:   cfg.MaxPoolSize(),
		PoolSlots:     addrpool.NumPools,
		OSPageSize:    uint64(reserve.PageSize()),
	}
}

func runInfo(w io.Writer) error {
	info := managerInfo()
	if jsonOut {
		return printJSON(w, info)
	}

	p := message.NewPrinter(language.English)
	supported := "no"
	if info.Supported {
		supported = "yes"
	}
	printInfo(w, "Architecture:     %s (supported: %s)\n", info.Arch, supported)
	printInfo(w, "Super-page size:  %s\n", humanize.IBytes(info.SuperPageSize))
	printInfo(w, "Units per pool:   %s\n", p.Sprintf("%d", info.MaxUnits))
	printInfo(w, "Max pool size:    %s\n", humanize.IBytes(info.MaxPoolSize))
	printInfo(w, "Pool slots:       %d\n", info.PoolSlots)
	printInfo(w, "OS page size:     %s\n", humanize.IBytes(info.OSPageSize))
	return nil
}
