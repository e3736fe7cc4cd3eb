package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	Ns "github.com/maroda/neurales/server"
)

const envPrefix = "NEURALES"

var (
	configFile string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "neurales",
	Short: "Real-time EEG fatigue scoring",
	Long: `neurales plays an EEG recording in fixed-size chunks, keeps a sliding
analysis window over it and scores each chunk with the theta/alpha
band-power ratio mapped onto 0-100.

Scored chunks go to websocket clients (serve), stdout (score)
or a Kafka/MQTT topic (publish).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(cmd.ErrOrStderr(), logLevel, logFormat); err != nil {
			return err
		}
		return bindFlags(cmd, viper.GetViper())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file, .json or .yaml (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"log format (text, json)")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// setupLogging installs the default slog logger
func setupLogging(w io.Writer, level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// bindFlags binds each cobra flag to its associated viper configuration
// and to a NEURALES_ environment variable
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))

		if err := v.BindEnv(f.Name, envPrefix+"_"+envVarSuffix); err != nil {
			lastErr = err
		}

		// Apply the env value to the flag when the flag is not set
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				lastErr = err
			}
		}

		if err := v.BindPFlag(f.Name, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// loadConfig reads --config, or the defaults, then applies any overriding flags.
// A flag overrides only when it was given on the command line or through the environment.
func loadConfig(cmd *cobra.Command) (*Ns.Config, error) {
	var (
		cfg *Ns.Config
		err error
	)
	if configFile != "" {
		cfg, err = Ns.LoadConfigFileName(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configFile, err)
		}
		slog.Info("Using config file", slog.String("file", configFile))
	} else {
		cfg = Ns.DefaultConfig()
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if changed("edf") {
		cfg.Recording.Path, _ = flags.GetString("edf")
		cfg.Recording.Synthetic = false
	}
	if changed("picks") {
		cfg.Recording.Picks, _ = flags.GetStringSlice("picks")
	}
	if changed("synthetic") {
		cfg.Recording.Synthetic, _ = flags.GetBool("synthetic")
	}
	if changed("chunk-seconds") {
		cfg.Stream.ChunkSeconds, _ = flags.GetFloat64("chunk-seconds")
	}
	if changed("window-seconds") {
		cfg.Stream.WindowSeconds, _ = flags.GetFloat64("window-seconds")
	}
	if changed("annotator") {
		cfg.Stream.Annotator, _ = flags.GetString("annotator")
	}
	if changed("storage") {
		cfg.Storage.Path, _ = flags.GetString("storage")
		cfg.Storage.Enabled = cfg.Storage.Path != ""
	}
	if changed("mirror") {
		cfg.Mirror.Kind, _ = flags.GetString("mirror")
	}
	if changed("brokers") {
		cfg.Mirror.Brokers, _ = flags.GetStringSlice("brokers")
	}
	if changed("topic") {
		cfg.Mirror.Topic, _ = flags.GetString("topic")
	}
	if changed("telemetry") {
		cfg.Telemetry.Exporter, _ = flags.GetString("telemetry")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// recordingFlags are shared by every command that plays a recording
func recordingFlags(fs *pflag.FlagSet) {
	fs.String("edf", "", "EDF recording to play")
	fs.StringSlice("picks", nil, "channels to pick (default Fpz-Cz,Pz-Oz, else the first two)")
	fs.Bool("synthetic", false, "play a generated recording instead of an EDF file")
	fs.Float64("chunk-seconds", 0, "chunk duration in seconds")
	fs.Float64("window-seconds", 0, "analysis window in seconds")
	fs.String("annotator", "", "quality/alert annotator (constant, trend)")
}

// mirrorFlags select a broker for payload copies
func mirrorFlags(fs *pflag.FlagSet) {
	fs.String("mirror", "", "broker kind (kafka, mqtt)")
	fs.StringSlice("brokers", nil, "broker addresses")
	fs.String("topic", "", "topic for payloads")
}
