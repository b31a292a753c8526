/*
PURPOSE:
  Defines the 'serve' subcommand: the live report and records over HTTP.

ARCHITECTURE INTEGRATION:
  - Calls: internal/server.New

ERROR HANDLING:
  - Returns listen errors; SIGINT/SIGTERM shut the server down gracefully.

USAGE:
  packbench serve performance_results/performance_data_20261017_120000.csv --addr :8080
*/

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/daryltucker/packbench/internal/output"
	"github.com/daryltucker/packbench/internal/server"
)

var (
	serveAddr      string
	serveDatasets  []int
	serveAlgorithm string
)

var serveCmd = &cobra.Command{
	Use:   "serve <csv>",
	Short: "Serve the live report and records over HTTP",
	Long: `Serves the HTML report at / and the records as JSON under /api. The CSV is
re-read on every request, so pointing this at the file of a running sweep
shows progress as units complete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		filter := output.Filter{Datasets: serveDatasets, Algorithm: serveAlgorithm}
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           server.New(args[0], filter),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			output.Logger.Info("Serving results", "addr", serveAddr, "path", args[0])
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().IntSliceVar(&serveDatasets, "datasets", nil, "Default dataset filter")
	serveCmd.Flags().StringVar(&serveAlgorithm, "algorithm", "", "Default algorithm filter (substring, case-insensitive)")
}
