package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	Nd "github.com/maroda/neurales/display"
	No "github.com/maroda/neurales/obvy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live EEG sessions over websocket",
	Long: `Each websocket connection on /ws gets its own session playing the
configured recording. Clients may send {"action":"pause"|"resume"|"stop"}.

Also served: /metrics, /api/version, /api/sessions and
/api/sessions/{id}/history when storage is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		shutdown, err := No.InitTelemetry(cfg.Telemetry.Exporter)
		if err != nil {
			return err
		}
		defer shutdown()

		view, err := Nd.NewView(cfg)
		if err != nil {
			slog.Error("Could not start neurales", slog.Any("error", err))
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return view.Serve(ctx)
	},
}

func init() {
	fs := serveCmd.Flags()
	fs.String("addr", "", "listen address (default :8090)")
	fs.String("storage", "", "BadgerDB directory for score history (empty disables)")
	fs.String("telemetry", "", "trace exporter (honeycomb, otlp)")
	recordingFlags(fs)
	mirrorFlags(fs)

	rootCmd.AddCommand(serveCmd)
}
