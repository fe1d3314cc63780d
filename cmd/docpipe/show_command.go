package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/sink"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <documentID>",
		Short: "Show a document record in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				doc, err := resolveDocument(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:            %s\n", doc.ID)
				fmt.Fprintf(out, "File:          %s\n", orDash(doc.OriginalFileName))
				fmt.Fprintf(out, "Source:        %s\n", orDash(doc.SourceLocator))
				fmt.Fprintf(out, "Content type:  %s\n", orDash(doc.ContentType))
				fmt.Fprintf(out, "Size:          %d bytes\n", doc.SizeBytes)
				fmt.Fprintf(out, "Status:        %s\n", doc.Status)
				fmt.Fprintf(out, "Category:      %s\n", orDash(doc.Category))
				fmt.Fprintf(out, "Text artifact: %s\n", orDash(doc.ExtractedTextLocator))
				if doc.Status == docstore.StatusFailed {
					fmt.Fprintf(out, "Failed stage:  %s\n", orDash(doc.FailedStage))
					fmt.Fprintf(out, "Reason:        %s\n", orDash(doc.FailureReason))
				}
				fmt.Fprintf(out, "Attempts:      extract=%d classify=%d notify=%d\n",
					doc.ExtractAttempts, doc.ClassifyAttempts, doc.NotifyAttempts)
				if doc.NotifiedAt != nil {
					fmt.Fprintf(out, "Notified:      %s\n", doc.NotifiedAt.Local().Format(time.DateTime))
				}
				fmt.Fprintf(out, "Created:       %s\n", doc.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Updated:       %s\n", doc.UpdatedAt.Local().Format(time.DateTime))
				return nil
			})
		},
	}
}
