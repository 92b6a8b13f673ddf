package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/koscakluka/ema-phone/core/retrieval/pgvector"
	"github.com/koscakluka/ema-phone/internal/config"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the knowledge index schema to the vector database",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var databaseURLFlag string

func init() {
	migrateCmd.Flags().StringVar(&databaseURLFlag, "database-url", "", "Postgres URL (default: $"+config.VectorDatabaseURL+")")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	databaseURL, err := resolveDatabaseURL()
	if err != nil {
		return err
	}

	index, err := pgvector.Connect(cmd.Context(), databaseURL)
	if err != nil {
		return err
	}
	defer index.Close()

	if err := index.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "knowledge index schema is up to date")
	return nil
}

func resolveDatabaseURL() (string, error) {
	if databaseURLFlag != "" {
		return databaseURLFlag, nil
	}
	if url := os.Getenv(config.VectorDatabaseURL); url != "" {
		return url, nil
	}
	return "", errors.New("no database url: pass --database-url or set " + config.VectorDatabaseURL)
}
