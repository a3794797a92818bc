// Package store is the Persistent Store: durable users/orders/trades with
// strong referential integrity and atomic multi-row transactions, built on
// gorm + gorm.io/driver/postgres.
package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/abdoElHodaky/obcore/internal/config"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// Connect opens a gorm connection to Postgres using the given config and
// wires gorm's logger through zap.
func Connect(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)

	gormLogger := gormlogger.New(
		&zapGormWriter{logger: logger},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

// zapGormWriter adapts gorm's logger.Writer to zap.
type zapGormWriter struct {
	logger *zap.Logger
}

func (w *zapGormWriter) Printf(format string, args ...interface{}) {
	w.logger.Debug("gorm", zap.String("msg", fmt.Sprintf(format, args...)))
}

// Migrate auto-migrates the three logical relations (users, orders, trades)
// and creates the indexes the matching core leans on.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&model.User{}, &model.Order{}, &model.Trade{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	optimizer := NewOptimizer(db, logger)
	indexes := []struct {
		table   string
		name    string
		columns []string
		unique  bool
	}{
		{"orders", "idx_orders_contract_side_status", []string{"contract", "side", "status"}, false},
		{"orders", "idx_orders_owner", []string{"owner"}, false},
		{"orders", "idx_orders_expires_at", []string{"expires_at"}, false},
		{"trades", "idx_trades_contract", []string{"contract"}, false},
		{"trades", "idx_trades_buyer_order", []string{"buyer_order"}, false},
		{"trades", "idx_trades_seller_order", []string{"seller_order"}, false},
	}
	for _, idx := range indexes {
		if err := optimizer.CreateIndex(idx.table, idx.name, idx.columns, idx.unique); err != nil {
			logger.Warn("failed to create index", zap.String("index", idx.name), zap.Error(err))
		}
	}
	return nil
}
