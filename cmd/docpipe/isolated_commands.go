package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"docpipe/internal/blobstore"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/notifications"
	"docpipe/internal/pipeline"
	"docpipe/internal/services"
	"docpipe/internal/sink"
)

func newIsolatedCommand(ctx *commandContext) *cobra.Command {
	isolatedCmd := &cobra.Command{
		Use:   "isolated",
		Short: "Inspect and replay documents parked in the isolation sink",
	}

	isolatedCmd.AddCommand(newIsolatedListCommand(ctx))
	isolatedCmd.AddCommand(newIsolatedShowCommand(ctx))
	isolatedCmd.AddCommand(newIsolatedReplayCommand(ctx))
	isolatedCmd.AddCommand(newIsolatedRemoveCommand(ctx))

	return isolatedCmd
}

func newIsolatedListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List isolated documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				entries, err := isolated.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Isolation sink is empty")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						shortID(entry.DocumentID),
						entry.Stage,
						entry.Reason,
						strconv.Itoa(entry.Attempts),
						entry.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Entry", "Document", "Stage", "Reason", "Attempts", "Isolated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newIsolatedShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entryID>",
		Short: "Show an isolated document entry in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				entry, err := isolated.GetByID(cmd.Context(), entryID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Entry:      %d\n", entry.ID)
				fmt.Fprintf(out, "Document:   %s\n", entry.DocumentID)
				fmt.Fprintf(out, "Stage:      %s\n", entry.Stage)
				fmt.Fprintf(out, "Reason:     %s\n", orDash(entry.Reason))
				fmt.Fprintf(out, "Attempts:   %d\n", entry.Attempts)
				fmt.Fprintf(out, "Last error: %s\n", orDash(entry.LastError))
				fmt.Fprintf(out, "Isolated:   %s\n", entry.CreatedAt.Local().Format(time.DateTime))
				if len(entry.Payload) > 0 {
					fmt.Fprintf(out, "Payload:    %s\n", entry.Payload)
				}
				return nil
			})
		},
	}
}

func newIsolatedReplayCommand(ctx *commandContext) *cobra.Command {
	var replayAll bool

	cmd := &cobra.Command{
		Use:   "replay [entryID...]",
		Short: "Replay isolated documents through the pipeline",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !replayAll && len(args) == 0 {
				return fmt.Errorf("specify entry ids or --all")
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				var entries []*sink.Entry
				if replayAll {
					all, err := isolated.List(cmd.Context())
					if err != nil {
						return err
					}
					entries = all
				} else {
					for _, id := range ids {
						entry, err := isolated.GetByID(cmd.Context(), id)
						if err != nil {
							return err
						}
						entries = append(entries, entry)
					}
				}

				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Isolation sink is empty")
					return nil
				}

				blobs := blobstore.NewFS(cfg)
				notifier := notifications.NewService(cfg)
				for _, entry := range entries {
					if err := replayEntry(cmd, cfg, store, isolated, blobs, notifier, entry); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&replayAll, "all", false, "Replay every isolated document")
	return cmd
}

// replayEntry resumes a parked document from where its pipeline run stopped.
// Notify-stage entries re-deliver the pending notification directly; every
// other stage failed the record, so replay restores the source object and
// resets the record for a fresh pass.
func replayEntry(cmd *cobra.Command, cfg *config.Config, store *docstore.Store, isolated *sink.Store, blobs blobstore.Store, notifier notifications.Service, entry *sink.Entry) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	doc, err := store.GetByID(ctx, entry.DocumentID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			fmt.Fprintf(out, "Entry %d references missing document %s, removing\n", entry.ID, shortID(entry.DocumentID))
			_, err = isolated.Remove(ctx, entry.ID)
			return err
		}
		return err
	}

	if entry.Stage == pipeline.NotifyStage {
		return replayNotification(ctx, out, store, isolated, notifier, entry, doc)
	}

	if doc.Status != docstore.StatusFailed {
		fmt.Fprintf(out, "Document %s already recovered (status %s), removing entry %d\n",
			shortID(doc.ID), doc.Status, entry.ID)
		_, err = isolated.Remove(ctx, entry.ID)
		return err
	}

	if _, err := retryDocument(ctx, store, isolated, blobs, doc, out); err != nil {
		return err
	}
	fmt.Fprintf(out, "Entry %d replayed\n", entry.ID)
	return nil
}

func replayNotification(ctx context.Context, out io.Writer, store *docstore.Store, isolated *sink.Store, notifier notifications.Service, entry *sink.Entry, doc *docstore.Document) error {
	if doc.NotifiedAt == nil && doc.Status == docstore.StatusClassified {
		err := notifier.Publish(ctx, notifications.EventDocumentClassified, notifications.Payload{
			DocumentID:       doc.ID,
			OriginalFileName: doc.OriginalFileName,
			Category:         doc.Category,
		})
		if err != nil {
			return fmt.Errorf("replay notification for %s: %w", shortID(doc.ID), err)
		}
		if err := store.RecordNotified(ctx, doc.ID); err != nil && !services.IsConflict(err) {
			return err
		}
		fmt.Fprintf(out, "Notification delivered for %s\n", shortID(doc.ID))
	} else {
		fmt.Fprintf(out, "Document %s needs no notification, removing entry %d\n", shortID(doc.ID), entry.ID)
	}
	_, err := isolated.Remove(ctx, entry.ID)
	return err
}

func newIsolatedRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <entryID...>",
		Short: "Discard isolated documents without replaying them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				removed, err := isolated.Remove(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d isolated entries\n", removed)
				return nil
			})
		},
	}
}
