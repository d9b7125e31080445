package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"insurebot-core/internal/app"
	"insurebot-core/internal/config"
	"insurebot-core/internal/ingest"
	"insurebot-core/internal/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	corpusFile     string
	outFile        string
	recreate       bool
	usePrecomputed bool
	chunkRunes     int
	batchSize      int
	concurrency    int

	rootCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Manage the insurance knowledge corpus",
		Long: `ingest loads question/answer records into the configured vector
backend (qdrant or pgvector) so the gateway can retrieve them.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Chunk, embed and upsert a JSON corpus into the vector store",
		RunE:  runIngest,
	}

	stripCmd = &cobra.Command{
		Use:   "strip-embeddings",
		Short: "Remove precomputed embeddings from a JSON corpus",
		RunE:  runStrip,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&corpusFile, "file", "f", "data/insurance_qa.json", "Path to the JSON corpus")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the collection or table first")
	runCmd.Flags().BoolVar(&usePrecomputed, "use-precomputed", false, "Reuse embeddings stored in the corpus when their dimension matches")
	runCmd.Flags().IntVar(&chunkRunes, "chunk-runes", ingest.DefaultChunkRunes, "Maximum characters per answer chunk")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 64, "Entries per upsert batch")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Parallel embedding requests")

	rootCmd.AddCommand(stripCmd)
	stripCmd.Flags().StringVarP(&outFile, "out", "o", "", "Output path (defaults to rewriting --file in place)")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := os.Open(corpusFile)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	records, err := ingest.ReadCorpus(f)
	f.Close()
	if err != nil {
		return err
	}

	clients, err := app.NewClients(ctx, cfg)
	if err != nil {
		return err
	}
	embedder, err := clients.Embedder(cfg)
	if err != nil {
		return err
	}
	corpus, closeCorpus, err := app.NewCorpus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCorpus()

	stats, err := ingest.NewIngestor(embedder, corpus, cfg.EmbeddingDim, logger).Run(ctx, records, ingest.Options{
		Recreate:       recreate,
		UsePrecomputed: usePrecomputed,
		ChunkRunes:     chunkRunes,
		BatchSize:      batchSize,
		Concurrency:    concurrency,
	})
	if err != nil {
		return fmt.Errorf("ingest failed after %d entries: %w", stats.Entries, err)
	}
	logger.Info("ingest complete",
		zap.String("backend", cfg.VectorBackend),
		zap.Int("records", stats.Records),
		zap.Int("skipped", stats.Skipped),
		zap.Int("entries", stats.Entries))
	return nil
}

func runStrip(cmd *cobra.Command, _ []string) error {
	in, err := os.Open(corpusFile)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer in.Close()

	dest := outFile
	if dest == "" {
		dest = corpusFile
	}
	// write next to the destination and rename so an in-place rewrite never
	// truncates the file being read
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".strip-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := ingest.StripEmbeddings(in, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d embeddings, wrote %s\n", n, dest)
	return nil
}
