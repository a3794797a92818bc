package store

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Optimizer provides query-plan inspection and index management using
// Postgres's own tools: `EXPLAIN`, session-level `SET`, and
// `CREATE INDEX IF NOT EXISTS`.
type Optimizer struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOptimizer creates a new Optimizer.
func NewOptimizer(db *gorm.DB, logger *zap.Logger) *Optimizer {
	return &Optimizer{db: db, logger: logger}
}

// AnalyzeQuery returns the Postgres query plan for query.
func (o *Optimizer) AnalyzeQuery(query string, args ...interface{}) (string, error) {
	rows, err := o.db.Raw(fmt.Sprintf("EXPLAIN %s", query), args...).Rows()
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var plan strings.Builder
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", err
		}
		plan.WriteString(line)
		plan.WriteByte('\n')
	}
	return plan.String(), nil
}

// OptimizeTable runs ANALYZE on a table to refresh the planner's statistics.
func (o *Optimizer) OptimizeTable(table string) error {
	if err := o.db.Exec(fmt.Sprintf("ANALYZE %s", table)).Error; err != nil {
		o.logger.Error("failed to analyze table", zap.String("table", table), zap.Error(err))
		return err
	}
	return nil
}

// CreateIndex creates an index if it doesn't already exist, with a plain
// (non-CONCURRENTLY) CREATE INDEX outside any explicit transaction.
func (o *Optimizer) CreateIndex(table, indexName string, columns []string, unique bool) error {
	uniqueStr := ""
	if unique {
		uniqueStr = "UNIQUE"
	}
	query := fmt.Sprintf("CREATE %s INDEX IF NOT EXISTS %s ON %s (%s)",
		uniqueStr, indexName, table, strings.Join(columns, ", "))

	if err := o.db.Exec(query).Error; err != nil {
		o.logger.Error("failed to create index",
			zap.String("table", table), zap.String("index", indexName), zap.Error(err))
		return err
	}
	return nil
}

// EnableSessionTuning applies Postgres session-level settings. Each SET runs
// on whichever pooled connection executes it, so it affects only that
// connection's session, not the other connections in the pool.
func (o *Optimizer) EnableSessionTuning() error {
	settings := []string{
		"SET statement_timeout = '5s'",
		"SET lock_timeout = '2s'",
	}
	for _, stmt := range settings {
		if err := o.db.Exec(stmt).Error; err != nil {
			o.logger.Warn("failed to apply session setting", zap.String("stmt", stmt), zap.Error(err))
		}
	}
	return nil
}
