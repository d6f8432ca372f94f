package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docfiscal/nfscan/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP scanning server",
	Long: `Start an HTTP server exposing the scanning pipeline.

Endpoints:
  POST /ocr/image   multipart image upload
  POST /ocr/pdf     multipart PDF upload
  GET  /ws/pdf      WebSocket with per-page progress
  GET  /health      liveness probe
  GET  /metrics     Prometheus metrics

Examples:
  nfscan serve
  nfscan serve --port 8080 --host 127.0.0.1`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.New(cfg).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "host to bind")
	serveCmd.Flags().Int("port", 8000, "port to listen on")
	serveCmd.Flags().String("cors-origin", "*", "Access-Control-Allow-Origin value")
	serveCmd.Flags().Int("max-upload-mb", 20, "maximum upload size in megabytes")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.cors_origin", serveCmd.Flags().Lookup("cors-origin"))
	_ = viper.BindPFlag("server.max_upload_mb", serveCmd.Flags().Lookup("max-upload-mb"))

	rootCmd.AddCommand(serveCmd)
}
