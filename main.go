package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

var (
	configPath string
	logMode    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bill2sheet: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bill2sheet",
		Short: "Invoice image to spreadsheet server",
		Long: `bill2sheet accepts batches of invoice photos, validates them while streaming progress to the
client, extracts the bill lines with Gemini on Vertex AI and exports them as CSV or XLSX.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			tool.InitLogger()
			tool.SetLogMode(logMode)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file, created with defaults when missing")
	cmd.PersistentFlags().StringVar(&logMode, "log", "", "Log mode: dev, prod or none")
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newUploadCmd(),
		newExportCmd(),
	)
	return cmd
}

func loadConfig() (types.AppConfig, error) {
	cfg, err := tool.LoadConfig(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
