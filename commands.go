package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/moyoez/bill2sheet/api"
	"github.com/moyoez/bill2sheet/client"
	"github.com/moyoez/bill2sheet/dispatch"
	"github.com/moyoez/bill2sheet/export"
	"github.com/moyoez/bill2sheet/tool"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var withWorker bool
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
				tool.SetCurrentConfig(cfg)
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			if withWorker && b.worker == nil {
				return fmt.Errorf("--with-worker needs queue.enabled and vertex.projectId")
			}

			if b.pool != nil {
				b.pool.Start(ctx)
				defer b.pool.Wait()
			}

			server := api.NewServer(cfg, api.Deps{
				Bills:      b.bills,
				Health:     b.health,
				Extractor:  b.extractor,
				Dispatcher: b.dispatcher,
			})
			g.Go(server.Start)
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			if withWorker {
				g.Go(func() error {
					return dispatch.RunWorker(ctx, cfg.Queue.RedisAddr, cfg.Queue.Concurrency, b.worker)
				})
			}
			tool.DefaultLogger.Infof("Upload page: %s%s", tool.LanBaseURL(cfg.Server.Port), "/upload")
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also consume the extraction queue in this process")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port from the config")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued extraction tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Queue.Enabled {
				tool.DefaultLogger.Warn("queue.enabled is false, the API will not enqueue tasks for this worker")
			}
			ctx := cmd.Context()
			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.worker == nil {
				return fmt.Errorf("worker needs vertex.projectId and the storage section configured")
			}
			return dispatch.RunWorker(ctx, cfg.Queue.RedisAddr, cfg.Queue.Concurrency, b.worker)
		},
	}
}

func newUploadCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "upload <image>...",
		Short: "Upload invoice images to a running server and follow the progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, closeFiles, err := client.OpenFiles(args)
			if err != nil {
				return err
			}
			defer closeFiles()

			state, err := client.NewUploader(server).Upload(cmd.Context(), files, printEvent)
			if err != nil {
				return err
			}
			for _, f := range state.Files() {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-20s %-18s %s\n", f.Index, f.Name, f.Status, f.Message)
			}
			if state.Failed {
				return fmt.Errorf("session failed: %s", state.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d files accepted in %dms\n", state.SuccessCount, state.TotalFiles, state.DurationMs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "http://127.0.0.1:8000", "Base URL of the bill2sheet server")
	return cmd
}

func printEvent(ev client.OcrEvent) {
	d := ev.Data
	switch {
	case d.FileIndex != nil && d.Message != "":
		tool.DefaultLogger.Infof("[Client] %s file=%d %s", ev.Type, *d.FileIndex, d.Message)
	case d.FileIndex != nil:
		tool.DefaultLogger.Infof("[Client] %s file=%d", ev.Type, *d.FileIndex)
	default:
		tool.DefaultLogger.Infof("[Client] %s", ev.Type)
	}
}

func newExportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored bill to a CSV or XLSX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("export needs database.dsn; in-memory bills only live inside the server")
			}
			ctx := cmd.Context()
			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			bills, err := b.bills.List(ctx, 0, 0)
			if err != nil {
				return fmt.Errorf("list bills: %w", err)
			}
			data, err := export.Export(bills, f)
			if err != nil {
				return err
			}
			if output == "" {
				output = tool.ExportFileName(f.Extension(), time.Now())
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			abs, _ := filepath.Abs(output)
			tool.DefaultLogger.Infof("Exported %d bills to %s", len(bills), abs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, defaults to bills_export_<time>.<ext>")
	return cmd
}
