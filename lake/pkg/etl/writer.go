package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
	"github.com/malbeclabs/songlake/lake/pkg/etl/metrics"
	"github.com/malbeclabs/songlake/lake/pkg/storage"
)

// unpartitionedFile is the single data file of a table written without partition columns.
const unpartitionedFile = "data_0.parquet"

// TableResult reports what a table write produced.
type TableResult struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	PartitionBy []string `json:"partition_by,omitempty"`
	Rows        int64    `json:"rows"`
	Partitions  int64    `json:"partitions"`
}

type tableWriter struct {
	log    *slog.Logger
	conn   duck.Connection
	store  storage.Store
	output string
}

// write materializes view into table's directory, replacing whatever a previous run left.
func (w *tableWriter) write(ctx context.Context, table Table, view string) (TableResult, error) {
	result := TableResult{
		Name:        table.Name,
		Path:        TablePath(w.output, table),
		PartitionBy: table.PartitionBy,
	}

	source := "SELECT * FROM " + duck.QuoteIdent(view)
	rows, partitions, err := w.count(ctx, table, source)
	if err != nil {
		return result, err
	}

	if err := w.store.Prepare(ctx, table.Dir()); err != nil {
		return result, fmt.Errorf("failed to clear previous %s output: %w", table.Name, err)
	}

	target, err := duck.EnginePath(result.Path)
	if err != nil {
		return result, err
	}
	if _, err := w.conn.ExecContext(ctx, copySQL(source, target, table.PartitionBy)); err != nil {
		return result, fmt.Errorf("failed to write %s table: %w", table.Name, err)
	}

	result.Rows = rows
	result.Partitions = partitions
	metrics.RowsWrittenTotal.WithLabelValues(table.Name).Add(float64(rows))
	w.log.Info("wrote table", "table", table.Name, "path", duck.RedactedStorageURI(result.Path), "rows", rows, "partitions", partitions)
	return result, nil
}

func (w *tableWriter) count(ctx context.Context, table Table, source string) (rows, partitions int64, err error) {
	if err := w.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s)", source)).Scan(&rows); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s rows: %w", table.Name, err)
	}
	if len(table.PartitionBy) == 0 {
		if rows > 0 {
			partitions = 1
		}
		return rows, partitions, nil
	}
	q := fmt.Sprintf("SELECT count(*) FROM (SELECT DISTINCT %s FROM (%s))", quoteColumns(table.PartitionBy), source)
	if err := w.conn.QueryRowContext(ctx, q).Scan(&partitions); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s partitions: %w", table.Name, err)
	}
	return rows, partitions, nil
}

// copySQL builds the Parquet write. Partitioned tables become hive-style col=value
// directories; unpartitioned tables a single file inside the table directory.
func copySQL(source, target string, partitionBy []string) string {
	if len(partitionBy) == 0 {
		return fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", source, duck.QuoteLiteral(target+"/"+unpartitionedFile))
	}
	return fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, PARTITION_BY (%s), OVERWRITE_OR_IGNORE)",
		source, duck.QuoteLiteral(target), quoteColumns(partitionBy))
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = duck.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
