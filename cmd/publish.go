package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	Nd "github.com/maroda/neurales/display"
)

var publishCmd = &cobra.Command{
	Use:   "publish [recording.edf]",
	Short: "Stream scored chunks to a Kafka or MQTT topic",
	Long: `publish plays a recording in real time and sends every payload to a broker.
Kafka messages are keyed by session id. MQTT messages go to <topic>/<session id>.`,
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
		if cfg.Mirror.Kind == "" {
			return errors.New("publish needs a broker: set --mirror kafka|mqtt with --brokers and --topic")
		}
		fast, _ := cmd.Flags().GetBool("fast")

		mirror, err := Nd.NewMirror(cfg.Mirror)
		if err != nil {
			return err
		}
		defer mirror.Close()

		id := Nd.NewSessionID()
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return runStream(cmd.Context(), cfg, mirror.Emitter(id), fast, id)
	},
}

func init() {
	fs := publishCmd.Flags()
	recordingFlags(fs)
	mirrorFlags(fs)
	fs.Bool("fast", false, "do not pace chunks in real time")

	rootCmd.AddCommand(publishCmd)
}
