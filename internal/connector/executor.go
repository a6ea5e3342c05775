package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/faucetdb/askdb/internal/askdb"
)

// ExecutorOptions bounds what a single execution may do.
type ExecutorOptions struct {
	// MaxRows fails the execution once more rows than this arrive. Zero
	// disables the check.
	MaxRows int
	// Timeout bounds the statement. Zero leaves it to the caller's context.
	Timeout time.Duration
}

// NewExecutor returns an askdb.Executor that runs the exact SQL it is given
// inside a transaction which is always rolled back. Drivers that honour
// read-only transactions get one.
func NewExecutor(conn Connector, opts ExecutorOptions) askdb.Executor {
	return func(ctx context.Context, sqlText string) (askdb.Rows, error) {
		db := conn.DB()
		if db == nil {
			return nil, ErrNotConnected
		}
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		var txOpts *sql.TxOptions
		if conn.SupportsReadOnlyTx() {
			txOpts = &sql.TxOptions{ReadOnly: true}
		}
		tx, err := db.BeginTxx(ctx, txOpts)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryxContext(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := askdb.Rows{}
		for rows.Next() {
			if opts.MaxRows > 0 && len(out) >= opts.MaxRows {
				return nil, fmt.Errorf("result exceeds the maximum of %d rows", opts.MaxRows)
			}
			row := make(map[string]any)
			if err := rows.MapScan(row); err != nil {
				return nil, fmt.Errorf("scan row: %w", err)
			}
			for k, v := range row {
				if b, ok := v.([]byte); ok {
					row[k] = string(b)
				}
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}
}
