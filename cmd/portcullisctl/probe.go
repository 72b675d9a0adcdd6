package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/portcullis-nac/portcullis/internal/lifecycle"
)

var probeCmd = &cobra.Command{
	Use:   "probe <address>",
	Short: "Check whether a NAD answers on the RADIUS port",
	Long: `Dial a NAD over TCP and report reachability and latency. A refused
connection counts as reachable since the host answered.

Example:
  portcullisctl probe 10.0.0.5 --port 2083`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		prober := lifecycle.NewProber(lifecycle.ProberConfig{Port: port, Timeout: timeout})
		result := prober.Probe(cmd.Context(), args[0])

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.Reachable {
			return fmt.Errorf("%s unreachable", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntP("port", "p", 1812, "Port to dial")
	probeCmd.Flags().Duration("timeout", 3*time.Second, "Dial timeout")
}
