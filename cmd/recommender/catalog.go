package main

import (
	"context"
	"fmt"

	"github.com/hyperengineering/recommender/internal/config"
	"github.com/hyperengineering/recommender/internal/store"
	"github.com/hyperengineering/recommender/internal/types"
	"github.com/hyperengineering/recommender/internal/validation"
	"github.com/spf13/cobra"
)

var (
	catalogNamespace string
	catalogFile      string
	catalogDBPath    string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the feature catalogs",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load features into the user or item catalog",
	Long: `Load features from a JSON or YAML file into a catalog.

The file holds a list of features:

  [{"id": 1, "description": "genre:drama", "embedding": [0.1, 0.2]}]

The batch is all-or-nothing: an invalid or duplicate feature aborts the import.`,
	Args: cobra.NoArgs,
	RunE: runCatalogImport,
}

func init() {
	catalogImportCmd.Flags().StringVar(&catalogNamespace, "namespace", string(types.NamespaceItem),
		"Catalog to load: user or item")
	catalogImportCmd.Flags().StringVar(&catalogFile, "file", "", "Feature file (JSON, or YAML by extension)")
	catalogImportCmd.Flags().StringVar(&catalogDBPath, "db", "",
		"Database path (overrides config and RECOMMENDER_DB_PATH)")
	catalogImportCmd.MarkFlagRequired("file")

	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ns, err := types.ParseNamespace(catalogNamespace)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setCommandLogger(cmd, cfg)
	dbPath := cfg.Database.Path
	if catalogDBPath != "" {
		dbPath = catalogDBPath
	}

	var features []types.Feature
	if err := decodeFile(catalogFile, &features); err != nil {
		return err
	}
	if errs := validateFeatures(features); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("%d invalid fields in %s", len(errs), catalogFile)
	}

	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.PutFeatures(ctx, ns, features)
	if err != nil {
		return fmt.Errorf("import %s features: %w", ns, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s features into %s\n", n, ns, dbPath)
	return nil
}

func validateFeatures(features []types.Feature) []validation.ValidationError {
	var errs []validation.ValidationError
	seen := make(map[int64]bool, len(features))
	for i, f := range features {
		field := fmt.Sprintf("features[%d]", i)
		errs = append(errs, validation.ValidateFeature(field, f)...)
		if seen[f.ID] {
			errs = append(errs, validation.ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate id %d", f.ID),
			})
		}
		seen[f.ID] = true
	}
	return errs
}
