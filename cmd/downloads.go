package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

func newDownloadsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "Lists the most recent downloads",
		Long: `Reads the download log of a previous or running crawl, newest first.
The Postgres table is used when configured, otherwise the Redis list.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.Frontier.Backend != "redis" && rt.cfg.EventLog.PostgresDSN == "" {
				return fmt.Errorf("no persistent download log configured")
			}
			// Only the readable logs matter here.
			rt.cfg.EventLog.PubSubTopic = ""
			rt.cfg.Mirror.GCSBucket = ""

			svc, err := buildServices(cmd.Context(), rt.cfg, rt.logger)
			defer svc.Close()
			if err != nil {
				return err
			}
			entries, err := svc.reader.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list downloads: %w", err)
			}
			return printEntries(cmd.OutOrStdout(), entries, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")
	return cmd
}

func printEntries(w io.Writer, entries []eventlog.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("encode entry: %w", err)
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tDOMAIN\tYEAR\tPATH\tURL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Domain, e.Year, e.FilePath, e.URL)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
