package main

import (
	"github.com/flowbot/media-migrator/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	mappingsLimit          int
	mappingsMissingIDsOnly bool
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Print the recorded url to attachment id mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return errors.Wrap(err, "reading configuration")
		}
		defer done()

		db, err := store.InitDB(cfg)
		if err != nil {
			return errors.Wrap(err, "initializing data store")
		}

		s := store.NewStore(db)
		defer s.Close()

		filter := store.NewMappingQueryFilter()
		if mappingsMissingIDsOnly {
			filter = filter.WithoutExternalID()
		}
		opts := store.NewMappingQueryOptions().WithSortOrder(store.SortByURL)
		if mappingsLimit > 0 {
			opts = opts.WithLimit(mappingsLimit)
		}

		list, err := s.Mapping().List(cmd.Context(), filter, opts)
		if err != nil {
			return errors.Wrap(err, "listing mappings")
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"URL", "External ID", "Updated"})
		for _, m := range list {
			tw.AppendRow(table.Row{m.URL, m.ExternalID, m.UpdatedAt.Format("2006-01-02 15:04:05")})
		}
		tw.AppendFooter(table.Row{"", "Total", len(list)})
		tw.Render()

		return nil
	},
}

func init() {
	mappingsCmd.Flags().IntVar(&mappingsLimit, "limit", 0, "Maximum number of mappings to print")
	mappingsCmd.Flags().BoolVar(&mappingsMissingIDsOnly, "missing-external-id", false, "Only print mappings without an external id")
}
