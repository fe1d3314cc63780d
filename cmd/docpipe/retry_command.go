package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docpipe/internal/blobstore"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/services"
	"docpipe/internal/sink"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [documentID...]",
		Short: "Reset failed documents for another pipeline pass",
		Long: "Reset failed documents to received, restore their source objects to the " +
			"inbox, and drop any matching isolation sink entries. Without arguments all " +
			"failed documents are retried.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				blobs := blobstore.NewFS(cfg)
				out := cmd.OutOrStdout()

				var targets []*docstore.Document
				if len(args) == 0 {
					failed, err := store.List(cmd.Context(), docstore.StatusFailed)
					if err != nil {
						return err
					}
					targets = failed
				} else {
					for _, arg := range args {
						doc, err := resolveDocument(cmd.Context(), store, arg)
						if err != nil {
							return err
						}
						targets = append(targets, doc)
					}
				}

				if len(targets) == 0 {
					fmt.Fprintln(out, "No failed documents to retry")
					return nil
				}

				var retried int64
				for _, doc := range targets {
					if doc.Status != docstore.StatusFailed {
						fmt.Fprintf(out, "Document %s is not failed (status %s)\n", shortID(doc.ID), doc.Status)
						continue
					}
					count, err := retryDocument(cmd.Context(), store, isolated, blobs, doc, out)
					if err != nil {
						return err
					}
					retried += count
				}
				fmt.Fprintf(out, "Retried %d failed documents\n", retried)
				return nil
			})
		},
	}
}

// retryDocument returns a failed record to the start of the pipeline. The
// source object is moved back into the inbox first so the extraction stage can
// read it again; sink entries for the document are dropped since the record is
// live again.
func retryDocument(ctx context.Context, store *docstore.Store, isolated *sink.Store, blobs blobstore.Store, doc *docstore.Document, out io.Writer) (int64, error) {
	if doc.SourceLocator != "" {
		if _, err := blobs.Restore(ctx, doc.SourceLocator); err != nil && !services.IsPermanent(err) {
			return 0, err
		}
	}

	updated, err := store.RetryFailed(ctx, doc.ID)
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		fmt.Fprintf(out, "Document %s is not failed anymore\n", shortID(doc.ID))
		return 0, nil
	}

	if err := dropSinkEntries(ctx, isolated, doc.ID); err != nil {
		return updated, err
	}
	fmt.Fprintf(out, "Document %s reset for retry\n", shortID(doc.ID))
	return updated, nil
}

func dropSinkEntries(ctx context.Context, isolated *sink.Store, documentID string) error {
	entries, err := isolated.List(ctx)
	if err != nil {
		return err
	}
	var ids []int64
	for _, entry := range entries {
		if entry.DocumentID == documentID {
			ids = append(ids, entry.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = isolated.Remove(ctx, ids...)
	return err
}
