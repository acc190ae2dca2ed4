package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuuji/pulsewire/internal/debugsrv"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running join/send session's debug socket",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("socket", "", "debug socket path (default: platform-specific)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := debugsrv.FetchStatus(socketPathFlag(cmd))
	if err != nil {
		return fmt.Errorf("is a pulsewirectl session running? %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", styleKey.Render("State:"), status.State)
	if !status.ConnectedAt.IsZero() {
		fmt.Fprintf(w, "%s\t%s\n", styleKey.Render("Uptime:"), time.Since(status.ConnectedAt).Round(time.Second))
	}
	return w.Flush()
}
