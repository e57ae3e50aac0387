package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/source"
)

var importCmd = &cobra.Command{
	Use:   "import <source-path> <sqlite-path>",
	Short: "Import a geojson or shapefile feature source into a SQLite database",
	Args:  cobra.ExactArgs(2),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().String("driver", "geojson", "source driver: geojson, shapefile")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	driver, _ := cmd.Flags().GetString("driver")
	feats, err := source.Load(cmd.Context(), driver, args[0])
	if err != nil {
		return err
	}

	st, err := source.OpenSQLite(args[1])
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.Migrate(cmd.Context()); err != nil {
		return err
	}
	if err := st.ReplaceFeatures(cmd.Context(), feats); err != nil {
		return err
	}

	zap.L().Info("import: done",
		zap.Int("features", len(feats)),
		zap.String("db", args[1]),
	)
	return nil
}
