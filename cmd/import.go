package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file.shp>...",
	Short: "Load shapefile attributes and coordinates into the store",
	Long:  "Reads each shapefile's DBF attributes plus SHAPE_X/SHAPE_Y label coordinates and replaces the table of the same name in the attribute store.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")
		if name != "" && len(args) > 1 {
			return eris.New("--name can only be used with a single file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, path := range args {
			table := name
			if table == "" {
				table = store.TableName(path)
			}
			tbl, err := store.ReadShapefile(path, table)
			if err != nil {
				return eris.Wrapf(err, "import %s", path)
			}
			if err := st.Save(ctx, tbl); err != nil {
				return eris.Wrapf(err, "import %s", path)
			}
			zap.L().Info("import complete",
				zap.String("file", path),
				zap.String("table", table),
				zap.Int("rows", tbl.Len()),
				zap.Int("fields", len(tbl.Fields())),
			)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("name", "", "table name (default: file name without extension)")
	rootCmd.AddCommand(importCmd)
}
