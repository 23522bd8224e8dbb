// Command samworker runs one node of a SAM streaming subgraph-matching
// cluster: it loads a query definition, ingests edges from a CSV file or
// stdin, and writes completed subgraph matches to a file or stdout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samstream/engine/pkg/config"
	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
	"github.com/samstream/engine/pkg/ingest"
	"github.com/samstream/engine/pkg/query"
	"github.com/samstream/engine/pkg/sink"
	"github.com/samstream/engine/pkg/worker"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "samworker",
		Short: "samworker - distributed streaming subgraph-matching node",
		Long: `samworker runs one node of a SAM (Streaming Analytics Machine)
cluster: it hashes incoming labeled, timestamped edges across the
cluster, matches them against a declarative subgraph query, and emits
completed matches as they are found.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("samworker v%s (%s)\n", version, commit)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run --query query.yaml",
		Short: "Start this worker node",
	}
	cfg := config.RegisterFlags(runCmd.Flags())
	queryPath := runCmd.Flags().String("query", "", "path to a YAML subgraph query definition")
	maxOffset := runCmd.Flags().Float64("maxOffset", 3600, "seconds used to resolve an unbounded start or end time range")
	runCmd.MarkFlagRequired("query")
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runWorker(cfg, *queryPath, *maxOffset)
	}
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorker(cfg *config.WorkerConfig, queryPath string, maxOffset float64) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	doc, err := os.ReadFile(queryPath)
	if err != nil {
		return fmt.Errorf("samworker: reading query file %s: %w", queryPath, err)
	}
	yq, err := query.ParseYAML(doc)
	if err != nil {
		return fmt.Errorf("samworker: parsing query: %w", err)
	}

	// The feature map is built before the query so the window operators
	// (spec §4.B) and vertex constraints (spec §4.C) a declarative query
	// defines can be compiled against, and share, the same map.
	features := feature.New(cfg.FeatureCapacity)
	builder, ops, err := yq.BuildWithFeatures(features)
	if err != nil {
		return fmt.Errorf("samworker: compiling query features: %w", err)
	}
	q, err := builder.Finalize(maxOffset)
	if err != nil {
		return fmt.Errorf("samworker: finalizing query: %w", err)
	}

	out, err := openSink(cfg)
	if err != nil {
		return err
	}

	w := worker.NewWithFeatures(cfg, q, out, features, ops...)
	if err := w.Start(); err != nil {
		return fmt.Errorf("samworker: starting worker: %w", err)
	}
	defer w.Shutdown()

	return ingestEdges(cfg, w)
}

func openSink(cfg *config.WorkerConfig) (*sink.Printer, error) {
	if cfg.OutputFile == "" {
		return sink.NewWriterPrinter(os.Stdout), nil
	}
	p, err := sink.NewDiskPrinter(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("samworker: %w", err)
	}
	return p, nil
}

func ingestEdges(cfg *config.WorkerConfig, w *worker.Worker) error {
	src := os.Stdin
	if cfg.InputFile != "" {
		f, err := os.Open(cfg.InputFile)
		if err != nil {
			return fmt.Errorf("samworker: opening input file %s: %w", cfg.InputFile, err)
		}
		defer f.Close()
		src = f
	}

	tuplizer := ingest.NewTuplizer(defaultSchema(), false, nil, cfg.NodeID)
	reader := ingest.NewReader(src, tuplizer)

	return reader.Each(func(e edge.Edge) error {
		w.ConsumeEdge(e)
		return nil
	})
}

// defaultSchema describes the line format spec.md §6 assumes absent a
// per-deployment schema file: label, source, target, start time,
// duration.
func defaultSchema() edge.Schema {
	return edge.Schema{
		Fields:      []string{"label", edge.FieldSource, edge.FieldTarget, edge.FieldTime, edge.FieldDuration},
		LabelFields: 1,
	}
}
