package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tgienger/devdesk/internal/models"
)

func newSearchCmd(o *options) *cobra.Command {
	var (
		limit     int
		docsOnly  bool
		tasksOnly bool
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Full-text search over tasks and documents",
		Long: `Every word is matched as a prefix, so "auth tok" finds "authentication token".
Results are ranked by relevance.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if docsOnly && tasksOnly {
				return fmt.Errorf("--docs and --tasks are mutually exclusive")
			}
			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			text := strings.Join(args, " ")
			ctx := cmd.Context()

			tasks := []models.Task{}
			if !docsOnly {
				if tasks, err = e.services.Tasks.Search(ctx, text, limit); err != nil {
					return err
				}
			}
			docs := []models.Document{}
			if !tasksOnly {
				if docs, err = e.services.Documents.Search(ctx, text, limit); err != nil {
					return err
				}
			}

			if o.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"tasks": tasks, "documents": docs})
			}
			if len(tasks) == 0 && len(docs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No matches for %q\n", text)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tID\tSTATUS\tTITLE")
			for _, t := range tasks {
				fmt.Fprintf(tw, "task\t%s\t%s\t%s\n", t.ID, t.Status, t.Title)
			}
			for _, d := range docs {
				fmt.Fprintf(tw, "document\t%s\tv%d\t%s\n", d.ID, d.Version, d.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results per kind")
	cmd.Flags().BoolVar(&docsOnly, "docs", false, "search documents only")
	cmd.Flags().BoolVar(&tasksOnly, "tasks", false, "search tasks only")
	return cmd
}

func newReindexCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every task and document to the Meilisearch mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if e.meili == nil {
				return fmt.Errorf("no search mirror configured (set search.meili.url)")
			}
			if !e.search.MirrorHealthy() {
				return fmt.Errorf("search mirror at %s is unreachable", e.cfg.Search.Meili.URL)
			}
			n, err := e.search.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d record(s)\n", n)
			return nil
		},
	}
}
