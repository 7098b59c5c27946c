package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/broadband-cli/internal/store"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables in the attribute store with row counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		infos, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "tables")
		}
		if len(infos) == 0 {
			fmt.Fprintln(os.Stderr, "No tables found.")
			return nil
		}
		writeTables(os.Stdout, infos)
		return nil
	},
}

func writeTables(out io.Writer, infos []store.TableInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS")
	_, _ = fmt.Fprintln(w, "-----\t----")
	for _, ti := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", ti.Name, ti.Rows)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}
