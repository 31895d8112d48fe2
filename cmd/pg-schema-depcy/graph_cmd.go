package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stripe/pg-schema-depcy/internal/depcy"
)

func buildGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph of a schema in DOT format",
	}

	schemaFlags := createSchemaSourceFlags(cmd, "schema", "The schema to graph.")
	settingsFlags := createSettingsFlags(cmd)
	reduceColumns := cmd.Flags().Bool("reduce-columns", false, "Merge every column into its table")
	creationOrder := cmd.Flags().Bool("creation-order", false, "Print the statement keys in an order in which "+
		"they can be created instead of the DOT graph")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		source, err := parseSchemaSource(*schemaFlags)
		if err != nil {
			return err
		}
		settings, err := parseSettings(*settingsFlags)
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		db, err := source.GetSchema(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting schema: %w", err)
		}
		opts := []depcy.GraphOpt{depcy.WithGraphLogger(newLogger(cmd, settings))}
		if *reduceColumns {
			opts = append(opts, depcy.WithReducedColumns())
		}
		g := depcy.NewDepcyGraph(db, opts...)
		if *creationOrder {
			keys, err := g.CreationOrder()
			if err != nil {
				return fmt.Errorf("sorting graph: %w", err)
			}
			for _, key := range keys {
				cmdPrintln(cmd, key)
			}
			return nil
		}
		if err := g.EncodeDOT(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("encoding graph: %w", err)
		}
		return nil
	}

	return cmd
}
