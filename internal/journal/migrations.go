package journal

import (
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

type MigrationManager struct {
	logger *logrus.Entry
	pool   *pgxpool.Pool
}

func NewMigrationManager(logger *logrus.Logger, pool *pgxpool.Pool) *MigrationManager {
	return &MigrationManager{
		logger: logger.WithField("pkg", "journal.MigrationManager"),
		pool:   pool,
	}
}

func (m *MigrationManager) Migrate() error {
	m.logger.Info("Starting journal database migration...")
	goose.SetLogger(m.logger)
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(m.pool)
	defer func() {
		_ = db.Close()
	}()
	if err := goose.Up(db, "migrations", goose.WithAllowMissing()); err != nil {
		return fmt.Errorf("goose.Up: %w", err)
	}
	m.logger.Info("Journal database migration completed successfully")
	return nil
}
