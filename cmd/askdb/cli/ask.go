package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faucetdb/askdb/internal/askdb"
	"github.com/faucetdb/askdb/internal/service"
)

// maxTableRows bounds the rows drawn in the terminal table; --json shows all.
const maxTableRows = 50

func newAskCmd() *cobra.Command {
	var (
		serviceName string
		noFormat    bool
		maxRows     int
		jsonOutput  bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a database a question in plain language",
		Long: `Generate a read-only SELECT for the question, run it and print the answer.

The statement is checked against askdb's safety rules and capped at --max-rows
before it reaches the database. Output is a table in a terminal and JSON when
piped or with --json.`,
		Example: `  askdb ask "How many customers signed up last month?"
  askdb ask --service shop --max-rows 20 "Top products by revenue"
  askdb ask --no-format --json "List overdue invoices" | jq .rawData`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runAsk(cmd.OutOrStdout(), question, serviceName, !noFormat, maxRows, jsonOutput, timeout)
		},
	}

	cmd.Flags().StringVarP(&serviceName, "service", "s", "", "Service to ask (default: ask.default_service or the only service)")
	cmd.Flags().BoolVar(&noFormat, "no-format", false, "Skip the natural-language summary; print SQL and rows only")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Row limit appended to the query (default: ask.max_rows)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall deadline (default: ask.timeout)")

	return cmd
}

func runAsk(out io.Writer, question, serviceName string, format bool, maxRows int, jsonOutput bool, timeout time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if timeout > 0 {
		cfg.Ask.Timeout = timeout.String()
	}
	// Keep the terminal readable: only warnings and errors from the pipeline.
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	logger := newLogger(cfg.Logging)

	ctx := context.Background()
	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.modelErr != nil {
		return fmt.Errorf("language model not configured: %w (set llm.api_key in askdb.yaml or ASKDB_LLM_API_KEY)", a.modelErr)
	}

	interactive := !jsonOutput && isTerminal(out)

	var spinner *pterm.SpinnerPrinter
	if interactive {
		spinner, _ = pterm.DefaultSpinner.Start("Thinking...")
	}
	res, err := a.asker.Ask(ctx, service.AskRequest{
		Service:       serviceName,
		Question:      question,
		MaxRows:       maxRows,
		FormatResults: &format,
	})
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return describeAskError(err)
	}

	if !interactive {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderResult(out, res)
	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// describeAskError adds the stage and statement to pipeline failures.
func describeAskError(err error) error {
	var ae *askdb.Error
	if !errors.As(err, &ae) {
		return err
	}
	if ae.SQL != "" {
		return fmt.Errorf("%s [%s]\n  SQL: %s", ae.Msg, ae.Kind, ae.SQL)
	}
	return fmt.Errorf("%s [%s]", ae.Msg, ae.Kind)
}

func renderResult(out io.Writer, res *askdb.Result) {
	if res.Answer != "" {
		pterm.Fprintln(out, pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(res.Answer))
		pterm.Fprintln(out)
	}

	title := pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("SQL")
	pterm.Fprintln(out, pterm.DefaultBox.WithTitle(title).WithPadding(1).Sprint(res.SQL))
	if res.Explanation != "" {
		pterm.Fprintln(out, pterm.NewStyle(pterm.FgGray).Sprint(res.Explanation))
	}
	pterm.Fprintln(out)

	if len(res.RawData) == 0 {
		pterm.Fprintln(out, "(no rows)")
	} else {
		table, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData(res.RawData, maxTableRows)).Srender()
		pterm.Fprintln(out, table)
		if len(res.RawData) > maxTableRows {
			pterm.Fprintln(out, fmt.Sprintf("... %d more rows (use --json to see all)", len(res.RawData)-maxTableRows))
		}
	}

	total := res.Usage.Total
	pterm.Fprintln(out, pterm.NewStyle(pterm.FgGray).Sprint(fmt.Sprintf(
		"%d rows in %dms · %d input / %d output tokens",
		len(res.RawData), res.ExecutionTimeMs, total.InputTokens, total.OutputTokens)))
}

// tableData lays rows out under a header of sorted column names. Map rows
// carry no column order, so sorting keeps the output stable.
func tableData(rows askdb.Rows, limit int) [][]string {
	colSet := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			colSet[col] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for col := range colSet {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	data := make([][]string, 0, limit+1)
	data = append(data, cols)
	for _, row := range rows[:limit] {
		line := make([]string, len(cols))
		for i, col := range cols {
			line[i] = cellString(row[col])
		}
		data = append(data, line)
	}
	return data
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
