// Command portcullisctl is the operator CLI: offline and on-demand compiles,
// schema migrations, job triggers and NAD probes.
//
//	portcullisctl migrate up
//	portcullisctl compile --force --reload
//	portcullisctl compile --snapshot policy.yaml --out ./build
//	portcullisctl jobs trigger ipsk:expiry_sweep
//	portcullisctl watch /run/portcullis/compile
//	portcullisctl probe 10.0.0.5
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/portcullis-nac/portcullis/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "portcullisctl",
	Short:         "Operate the Portcullis RADIUS policy compiler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadRuntime reads configuration and installs the configured logger.
func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
