package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/query"
)

func newValidateCmd() *cobra.Command {
	var (
		maxRows     int
		serviceName string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check a statement against the SQL safety rules",
		Long: `Apply the same checks a generated statement goes through before it runs:
a single read-only SELECT with no data-modifying keywords or sensitive system
objects. Valid statements are printed with the row limit applied.

Nothing is executed. With --service the target dialect is reported as well.`,
		Example: `  askdb validate "SELECT * FROM orders"
  askdb validate --max-rows 10 "SELECT id FROM users; DROP TABLE users"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0], serviceName, maxRows, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Row limit to apply (default: ask.max_rows)")
	cmd.Flags().StringVarP(&serviceName, "service", "s", "", "Report the dialect of this service")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type validateOutput struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	SQL     string `json:"sql,omitempty"`
	Dialect string `json:"dialect,omitempty"`
}

func runValidate(out io.Writer, sql, serviceName string, maxRows int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if maxRows <= 0 {
		maxRows = cfg.Ask.MaxRows
	}

	res := validateOutput{}
	if serviceName != "" {
		dialect, err := serviceDialect(serviceName)
		if err != nil {
			return err
		}
		res.Dialect = dialect
	}

	v := query.ValidateSQL(sql)
	res.Valid = v.Valid
	res.Error = v.Error
	if v.Valid {
		res.SQL = query.AddLimit(sql, maxRows)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Valid {
		fmt.Fprintln(out, "Valid.")
		fmt.Fprintf(out, "  SQL:     %s\n", res.SQL)
		if res.Dialect != "" {
			fmt.Fprintf(out, "  Dialect: %s\n", res.Dialect)
		}
	}

	if !res.Valid {
		return fmt.Errorf("invalid SQL: %s", res.Error)
	}
	return nil
}

// serviceDialect connects to the named service only long enough to read
// its dialect.
func serviceDialect(name string) (string, error) {
	conn, closeFn, err := connectNamedService(context.Background(), name)
	if err != nil {
		return "", err
	}
	defer closeFn()
	return conn.Dialect(), nil
}
