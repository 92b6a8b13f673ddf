package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koscakluka/ema-phone/core/llms/openai"
	"github.com/koscakluka/ema-phone/core/retrieval/pgvector"
	"github.com/koscakluka/ema-phone/internal/config"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Embed text files into the pgvector knowledge index",
	Long: `Splits each file into paragraphs separated by blank lines, embeds every
paragraph and stores it in the knowledge index. Run migrate first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&databaseURLFlag, "database-url", "", "Postgres URL (default: $"+config.VectorDatabaseURL+")")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadIngestConfig()
	if err != nil {
		return err
	}
	apiKey := config.LookupCredentials().OpenAIAPIKey
	if apiKey == "" {
		return errors.New(config.OpenAIAPIKey + " is not set")
	}
	databaseURL, err := resolveDatabaseURL()
	if err != nil {
		return err
	}

	index, err := pgvector.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer index.Close()

	embedder := openai.NewEmbeddingClient(apiKey,
		openai.WithEmbeddingURL(cfg.Retrieval.EmbeddingURL),
		openai.WithEmbeddingModel(cfg.Retrieval.EmbeddingModel))

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		source := filepath.Base(path)
		paragraphs := splitParagraphs(string(data))
		for _, paragraph := range paragraphs {
			vector, err := embedder.Embed(ctx, paragraph)
			if err != nil {
				return fmt.Errorf("failed to embed paragraph from %s: %w", source, err)
			}
			if _, err := index.Insert(ctx, paragraph, source, vector); err != nil {
				return fmt.Errorf("failed to store paragraph from %s: %w", source, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d snippets\n", source, len(paragraphs))
	}
	return nil
}

// loadIngestConfig falls back to the defaults when no config file is given.
func loadIngestConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitParagraphs returns the trimmed, non-empty blocks of text separated
// by blank lines.
func splitParagraphs(text string) []string {
	var (
		paragraphs []string
		current    []string
	)
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return paragraphs
}
