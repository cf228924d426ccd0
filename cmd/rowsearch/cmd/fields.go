package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowsearch/internal/output"
	"github.com/Aman-CERP/rowsearch/internal/search"
)

func newFieldsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the searchable fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.release()

			if err := validateFormat(format); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			s, err := cfg.BuildSchema()
			if err != nil {
				return err
			}

			fields := search.DescribeFields(s)
			out := output.New(cmd.OutOrStdout())
			if format == formatJSON {
				return out.JSON(fields)
			}

			rows := make([]map[string]string, len(fields))
			for i, f := range fields {
				rows[i] = map[string]string{
					"name":        f.Name,
					"display":     f.Display,
					"data_type":   f.DataType,
					"description": f.Description,
				}
			}
			return out.Table([]output.Column{
				{Key: "name", Header: "NAME"},
				{Key: "display", Header: "DISPLAY"},
				{Key: "data_type", Header: "TYPE"},
				{Key: "description", Header: "DESCRIPTION"},
			}, rows)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json")

	return cmd
}
