package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docpipe/internal/api"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/preflight"
	"docpipe/internal/sink"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *docstore.Store, isolated *sink.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				fmt.Fprintln(out, daemonStatusLine(cfg, colorize))
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					kind := statusOK
					if !result.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}

				health, err := api.NewDocumentService(store, isolated).Health(cmd.Context())
				if err != nil {
					return err
				}

				rows := buildStatusRows(health)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No documents recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				fmt.Fprintf(out, "Total: %d  Isolated: %d\n", health.Total, health.Isolated)
				return nil
			})
		},
	}
}

// daemonStatusLine probes the daemon's HTTP endpoint. Absence of the daemon is
// not an error for the CLI; every command works against the stores directly.
func daemonStatusLine(cfg *config.Config, colorize bool) string {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return renderStatusLine("Daemon", statusInfo, "API disabled", colorize)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + bind + "/api/health")
	if err != nil {
		return renderStatusLine("Daemon", statusInfo, "Not running", colorize)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return renderStatusLine("Daemon", statusWarn, fmt.Sprintf("API returned %d", resp.StatusCode), colorize)
	}
	return renderStatusLine("Daemon", statusOK, "Running on "+bind, colorize)
}

func buildStatusRows(health api.HealthView) [][]string {
	if health.Total == 0 {
		return nil
	}
	rows := make([][]string, 0, len(health.ByStatus))
	for _, status := range docstore.AllStatuses() {
		count := health.ByStatus[string(status)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	return rows
}
