package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowsearch/internal/output"
	"github.com/Aman-CERP/rowsearch/internal/search"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatText, formatJSON)
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index with the rowsearch query language. Arguments are
joined with spaces into one query, so quoting is optional.

The index must not be held by a running 'rowsearch serve'; query the HTTP
API instead while it runs.

Examples:
  rowsearch search red shoe
  rowsearch search +color:red -stock:0
  rowsearch search 'price:10..20' --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.release()

			if err := validateFormat(format); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			engine, s, err := a.openIndex(cfg, false, true)
			if err != nil {
				return err
			}

			svc, err := search.NewService(engine, s)
			if err != nil {
				return err
			}
			rows, err := svc.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if format == formatJSON {
				return out.JSON(rows)
			}
			if len(rows) == 0 {
				out.Status("", "no results")
				return nil
			}
			return out.Table(columns(svc.Fields()), toMaps(rows))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json")

	return cmd
}

func columns(fields []search.FieldInfo) []output.Column {
	cols := make([]output.Column, len(fields))
	for i, f := range fields {
		header := f.Display
		if header == "" {
			header = f.Name
		}
		cols[i] = output.Column{Key: f.Name, Header: header}
	}
	return cols
}

func toMaps(rows []search.Row) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
