package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		serviceName string
		failedOnly  bool
		limit       int
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently asked questions",
		Long: `List questions recorded in the ask history, newest first. History is kept in
the config store when history.enabled is set.`,
		Example: `  askdb history
  askdb history --service shop --failed
  askdb history show 0192f4c1-7a3e-7c41-9d52-6b1f0e8a2c37`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd.OutOrStdout(), config.HistoryFilter{
				Service:    serviceName,
				FailedOnly: failedOnly,
				Limit:      limit,
			}, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&serviceName, "service", "s", "", "Only questions asked of this service")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only questions that ended in an error")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func runHistoryList(out io.Writer, filter config.HistoryFilter, jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	recs, err := store.ListAsks(context.Background(), filter)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(out, "No questions recorded yet.")
		return nil
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(historyTable(recs)).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	return nil
}

func historyTable(recs []model.AskRecord) pterm.TableData {
	data := pterm.TableData{{"ID", "WHEN", "SERVICE", "QUESTION", "ROWS", "TIME", "STATUS"}}
	for _, r := range recs {
		status := "ok"
		if r.Failed() {
			status = r.ErrorCode
		}
		data = append(data, []string{
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			r.Service,
			truncate(r.Question, 48),
			fmt.Sprint(r.RowCount),
			fmt.Sprintf("%dms", r.DurationMs),
			status,
		})
	}
	return data
}

// ---------- history show ----------

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one history entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd.OutOrStdout(), args[0])
		},
	}
}

func runHistoryShow(out io.Writer, id string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	rec, err := store.GetAsk(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "ID:        %s\n", rec.ID)
	fmt.Fprintf(out, "Asked:     %s\n", rec.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(out, "Service:   %s\n", rec.Service)
	fmt.Fprintf(out, "Question:  %s\n", rec.Question)
	if rec.SQL != "" {
		fmt.Fprintf(out, "SQL:       %s\n", rec.SQL)
	}
	if rec.Failed() {
		fmt.Fprintf(out, "Error:     %s (%s)\n", rec.Error, rec.ErrorCode)
	} else {
		fmt.Fprintf(out, "Answer:    %s\n", rec.Answer)
		fmt.Fprintf(out, "Rows:      %d\n", rec.RowCount)
	}
	fmt.Fprintf(out, "Duration:  %dms\n", rec.DurationMs)
	fmt.Fprintf(out, "Tokens:    %d input / %d output\n", rec.InputTokens, rec.OutputTokens)
	return nil
}

// ---------- history prune ----------

func newHistoryPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open config store: %w", err)
			}
			defer store.Close()

			removed, err := store.PruneAsks(context.Background(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 1000, "Number of newest entries to keep")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
