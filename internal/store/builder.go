package store

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Builder is a fluent raw-query builder for the read-only listing
// operations (recent trades, user trades). UseIndex only
// leaves a planner hint comment rather than forcing an index, since doing
// that on Postgres needs the pg_hint_plan extension this module does not
// depend on.
type Builder struct {
	db        *gorm.DB
	logger    *zap.Logger
	table     string
	fields    []string
	wheres    []string
	whereArgs []interface{}
	orderBy   string
	limit     int
	offset    int
	hints     []string
}

// NewBuilder creates a new query builder against db.
func NewBuilder(db *gorm.DB, logger *zap.Logger) *Builder {
	return &Builder{
		db:     db,
		logger: logger,
		fields: []string{"*"},
		limit:  -1,
		offset: -1,
	}
}

func (b *Builder) Table(table string) *Builder { b.table = table; return b }

func (b *Builder) Select(fields ...string) *Builder { b.fields = fields; return b }

func (b *Builder) Where(condition string, args ...interface{}) *Builder {
	b.wheres = append(b.wheres, condition)
	b.whereArgs = append(b.whereArgs, args...)
	return b
}

func (b *Builder) OrderBy(clause string) *Builder { b.orderBy = clause; return b }

func (b *Builder) Limit(n int) *Builder { b.limit = n; return b }

func (b *Builder) Offset(n int) *Builder { b.offset = n; return b }

// UseIndex records a planner hint comment; see the type doc for why this
// cannot force an index outright.
func (b *Builder) UseIndex(indexName string) *Builder {
	b.hints = append(b.hints, fmt.Sprintf("/* prefer index: %s */", indexName))
	return b
}

// Build constructs the final SQL and its bind arguments.
func (b *Builder) Build() (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(b.fields, ", "), b.table)
	if len(b.hints) > 0 {
		query = fmt.Sprintf("%s %s", strings.Join(b.hints, " "), query)
	}
	if len(b.wheres) > 0 {
		query = fmt.Sprintf("%s WHERE %s", query, strings.Join(b.wheres, " AND "))
	}
	if b.orderBy != "" {
		query = fmt.Sprintf("%s ORDER BY %s", query, b.orderBy)
	}
	if b.limit >= 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, b.limit)
	}
	if b.offset >= 0 {
		query = fmt.Sprintf("%s OFFSET %d", query, b.offset)
	}
	return query, b.whereArgs
}

// Execute runs the built query and scans the results into dest.
func (b *Builder) Execute(dest interface{}) error {
	query, args := b.Build()

	start := time.Now()
	result := b.db.Raw(query, args...).Scan(dest)
	duration := time.Since(start)

	if duration > 100*time.Millisecond {
		b.logger.Warn("slow query", zap.String("query", query), zap.Duration("duration", duration))
	}
	if result.Error != nil {
		b.logger.Error("query execution failed", zap.String("query", query), zap.Error(result.Error))
	}
	return result.Error
}
