package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maroda/neurales/decoder"
	Ns "github.com/maroda/neurales/server"
)

// Inspection is what inspect prints about a recording
type Inspection struct {
	File          string          `json:"file" yaml:"file"`
	RecordSeconds float64         `json:"record_seconds" yaml:"record_seconds"`
	Records       int             `json:"records" yaml:"records"`
	Seconds       float64         `json:"seconds" yaml:"seconds"`
	Signals       []InspectSignal `json:"signals" yaml:"signals"`
	Picked        []string        `json:"picked" yaml:"picked"`
	Chunk         InspectChunking `json:"chunking" yaml:"chunking"`
}

type InspectSignal struct {
	Label      string  `json:"label" yaml:"label"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

type InspectChunking struct {
	ChunkSamples   int `json:"chunk_samples" yaml:"chunk_samples"`
	Chunks         int `json:"chunks" yaml:"chunks"`
	WindowCapacity int `json:"window_capacity" yaml:"window_capacity"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect recording.edf",
	Short: "Show what a recording holds and how it would be chunked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("output")
		picks, _ := cmd.Flags().GetStringSlice("picks")
		if len(picks) == 0 {
			picks = cfg.Recording.Picks
		}

		in, err := inspectFile(args[0], picks, cfg.Stream)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch format {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(in)
		case "yaml", "":
			return yaml.NewEncoder(out).Encode(in)
		default:
			return fmt.Errorf("unknown output format %q", format)
		}
	},
}

func inspectFile(path string, picks []string, sc Ns.StreamConfig) (*Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := decoder.ReadHeader(f)
	if err != nil {
		return nil, err
	}
	idx, names, err := decoder.ResolvePicks(h, picks)
	if err != nil {
		return nil, err
	}

	in := &Inspection{
		File:          path,
		RecordSeconds: h.RecordSeconds,
		Records:       h.Records,
		Seconds:       float64(h.Records) * h.RecordSeconds,
		Picked:        names,
	}
	for _, s := range h.Signals {
		in.Signals = append(in.Signals, InspectSignal{Label: s.Label, SampleRate: s.SampleRate})
	}

	first := h.Signals[idx[0]]
	n := h.Records * first.SamplesPerRecord
	size := Ns.ChunkSize(first.SampleRate, sc.ChunkSeconds)
	in.Chunk = InspectChunking{
		ChunkSamples:   size,
		Chunks:         Ns.ChunkCount(n, size),
		WindowCapacity: Ns.WindowCapacity(sc.WindowSeconds, first.SampleRate, sc.MinWindowSamples),
	}
	return in, nil
}

func init() {
	fs := inspectCmd.Flags()
	fs.StringP("output", "o", "yaml", "output format (yaml, json)")
	fs.StringSlice("picks", nil, "channels to pick")

	rootCmd.AddCommand(inspectCmd)
}
