package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docpipe/internal/api"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/sink"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List document records",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]docstore.Status, 0, len(listStatuses))
			for _, value := range listStatuses {
				status, ok := docstore.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				views, err := api.NewDocumentService(store, isolated).List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No documents found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Status", "Category", "Created"},
					buildListRows(views),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by document status (repeatable)")
	return cmd
}

func buildListRows(views []api.DocumentView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, []string{
			shortID(view.ID),
			view.OriginalFileName,
			view.Status,
			view.Category,
			view.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

// shortID abbreviates a UUID for table display. Full IDs remain available via
// show and the HTTP API.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
