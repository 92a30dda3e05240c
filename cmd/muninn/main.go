// Package main provides the Muninn CLI entry point.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/muninn/pkg/config"
	"github.com/orneryd/muninn/pkg/muninn"
	"github.com/orneryd/muninn/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "muninn",
		Short: "Muninn - Cross-Document Knowledge Synthesis",
		Long: `Muninn streams an extracted-knowledge corpus and synthesizes what no
single document states: convergent themes, contradictions between
sources, evolving relationships, latent patterns, and the concepts
bridging otherwise separate domains.

Features:
  • Lexical entity resolution via content fingerprints
  • Sliding-window stream statistics with emerging-concept detection
  • Table-driven contradiction (tension) detection
  • Five-strategy insight synthesis with deterministic ranking
  • Content-addressed run archive`,
	}

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Muninn v%s (%s)\n", version, commit)
		},
	})

	// Synthesize command
	synthesizeCmd := &cobra.Command{
		Use:   "synthesize [corpus.ndjson]",
		Short: "Synthesize a knowledge corpus into a report",
		Long: `Read an NDJSON corpus (one extraction record per line) and write the
synthesis report as JSON. Reads stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSynthesize,
	}
	synthesizeCmd.Flags().String("out", "", "Write the report to a file instead of stdout")
	synthesizeCmd.Flags().String("config", "", "YAML configuration file")
	synthesizeCmd.Flags().Int("window", 0, "Override the sliding window capacity")
	synthesizeCmd.Flags().String("scan-mode", "", "Tension scan mode: global, windowed or auto")
	synthesizeCmd.Flags().String("archive-dir", "", "Archive the report in a badger store at this directory")
	rootCmd.AddCommand(synthesizeCmd)

	// History command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List archived synthesis runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().String("archive-dir", "", "Badger archive directory")
	historyCmd.Flags().String("show", "", "Print the archived report for a corpus hash")
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration: defaults, then YAML file, then
// environment, then explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if window, _ := cmd.Flags().GetInt("window"); window > 0 {
		cfg.Window.Capacity = window
	}
	if mode, _ := cmd.Flags().GetString("scan-mode"); mode != "" {
		cfg.Tension.ScanMode = mode
	}
	if dir, _ := cmd.Flags().GetString("archive-dir"); dir != "" {
		cfg.Archive.Dir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	source := "stdin"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening corpus: %w", err)
		}
		defer f.Close()
		in = f
		source = args[0]
	}

	eng, err := muninn.New(cfg)
	if err != nil {
		return err
	}

	if cfg.Archive.Dir != "" {
		archive, err := store.NewBadgerStore(cfg.Archive.Dir)
		if err != nil {
			return err
		}
		defer archive.Close()
		eng.WithArchive(archive)
	}

	log.Printf("synthesizing corpus from %s", source)
	report, err := eng.SynthesizeCorpus(in)
	if err != nil {
		return err
	}
	log.Printf("run %s: %d records, %d tensions, %d insights",
		report.CorpusHash, report.Stats.TotalRecords, report.Stats.Tensions, report.Stats.Insights)

	body, err := report.JSON()
	if err != nil {
		return err
	}

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		return nil
	}
	_, err = os.Stdout.Write(body)
	return err
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("archive-dir")
	if dir == "" {
		dir = os.Getenv("MUNINN_ARCHIVE_DIR")
	}
	if dir == "" {
		return fmt.Errorf("no archive directory: pass --archive-dir or set MUNINN_ARCHIVE_DIR")
	}

	archive, err := store.NewBadgerStore(dir)
	if err != nil {
		return err
	}
	defer archive.Close()

	if key, _ := cmd.Flags().GetString("show"); key != "" {
		body, _, err := archive.GetReport(key)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(body)
		return err
	}

	metas, err := archive.ListReports()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("no archived runs")
		return nil
	}
	for _, m := range metas {
		fmt.Printf("%s  %s  %d records  %d insights\n",
			m.Key, m.CreatedAt.Format("2006-01-02 15:04:05"), m.Records, m.Insights)
	}
	return nil
}
