package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"micrscan/internal/micrscan"
	"micrscan/internal/reference"
	"micrscan/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for the MICR pipeline",
	Long: `Start an HTTP server exposing the MICR pipeline:

  POST /v1/preprocess - deskew/crop only, reports skew angle
  POST /v1/scan       - full pipeline, returns translated MICR fields
  GET  /metrics       - Prometheus metrics

Examples:
  micrscan serve
  micrscan serve --addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

		lib, err := reference.Load(cfg.Reference.ImagePath, cfg.Reference.DescriptorPath)
		if err != nil {
			return fmt.Errorf("loading reference glyphs: %w", err)
		}

		session, err := micrscan.New(cfg, lib, log)
		if err != nil {
			return fmt.Errorf("starting session: %w", err)
		}

		srv := server.New(session, cfg.Server, log)

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
			errCh <- srv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides config)")
}
