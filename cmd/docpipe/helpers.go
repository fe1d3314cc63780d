package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docpipe/internal/docstore"
	"docpipe/internal/services"
)

// resolveDocument looks a record up by full ID or unique ID prefix, so the
// abbreviated IDs printed by list can be pasted back into show and retry.
func resolveDocument(ctx context.Context, store *docstore.Store, arg string) (*docstore.Document, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("document id is required")
	}

	doc, err := store.GetByID(ctx, arg)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	docs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	var matched *docstore.Document
	for _, candidate := range docs {
		if !strings.HasPrefix(candidate.ID, arg) {
			continue
		}
		if matched != nil {
			return nil, fmt.Errorf("document id prefix %q is ambiguous", arg)
		}
		matched = candidate
	}
	if matched == nil {
		return nil, fmt.Errorf("document %q not found", arg)
	}
	return matched, nil
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
