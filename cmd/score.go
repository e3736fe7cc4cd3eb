package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	Nd "github.com/maroda/neurales/display"
	Np "github.com/maroda/neurales/plugin"
	Ns "github.com/maroda/neurales/server"
	Nt "github.com/maroda/neurales/types"
)

var scoreCmd = &cobra.Command{
	Use:   "score [recording.edf]",
	Short: "Score a recording and print one JSON payload per chunk",
	Long: `score plays a recording through the same scheduler a live session uses
and writes each payload as a line of JSON to stdout.

By default chunks are paced in real time; --fast scores as quickly as possible.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			if err := cmd.Flags().Set("edf", args[0]); err != nil {
				return err
			}
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fast, _ := cmd.Flags().GetBool("fast")

		emitter := Np.NewJSONLinesEmitter(cmd.OutOrStdout())
		return runStream(cmd.Context(), cfg, emitter, fast, Nd.NewSessionID())
	},
}

// runStream loads the configured recording and plays it to emitter until it ends or is interrupted.
// A load failure is emitted as an error payload before it is returned.
func runStream(ctx context.Context, cfg *Ns.Config, emitter Np.PayloadEmitter, fast bool, id string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	annotator, err := Np.AnnotatorLookup(cfg.Stream.Annotator)
	if err != nil {
		return &Ns.ConfigError{Field: "stream.annotator", Reason: err.Error()}
	}

	opts := []Ns.Option{Ns.WithSessionID(id), Ns.WithAnnotator(annotator)}
	if fast {
		opts = append(opts, Ns.WithPacer(Ns.ImmediatePacer{}))
	}
	if cfg.Storage.Enabled {
		bo, err := Np.NewBadgerOutput(cfg.Storage.Path, cfg.Storage.BatchSize)
		if err != nil {
			return err
		}
		defer bo.Close()
		opts = append(opts, Ns.WithRecorder(bo))
	}

	sched, err := Ns.NewScheduler(cfg.Scoring, cfg.Stream, emitter, opts...)
	if err != nil {
		return err
	}

	wave, err := Nd.RecordingSource(cfg.Recording)()
	if err == nil {
		err = sched.Load(wave)
	}
	if err != nil {
		_ = emitter.EmitError(ctx, Nt.ErrorPayload{Error: err.Error()})
		return err
	}

	slog.Info("Scoring recording",
		slog.String("session", id),
		slog.String("emitter", emitter.Type()),
		slog.Bool("fast", fast))

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

func init() {
	fs := scoreCmd.Flags()
	recordingFlags(fs)
	fs.Bool("fast", false, "do not pace chunks in real time")
	fs.String("storage", "", "BadgerDB directory to record scores into (empty disables)")

	rootCmd.AddCommand(scoreCmd)
}
