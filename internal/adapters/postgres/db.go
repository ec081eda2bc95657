package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Connect opens the saga database and sizes the shared pool. Every transition
// is one short read plus one guarded write, and the pool serves both the pump
// workers and the operational HTTP queries, so max open connections track the
// configured ceiling with half of them kept idle for redelivery bursts.
func Connect(ctx context.Context, logger *slog.Logger, databaseURL string, maxConns int32) (*gorm.DB, error) {
	if maxConns <= 0 {
		maxConns = 20
	}
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(int(maxConns))
	sqlDB.SetMaxIdleConns(int(maxConns) / 2)
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.InfoContext(ctx, "database connected",
		"module", "postgres.db",
		"layer", "adapter",
		"operation", "connect",
		"outcome", "success",
		"max_open_conns", maxConns,
	)
	return db, nil
}

// RunMigrations applies the embedded schema files in lexical order at boot and
// reports each applied file, so startup logs show exactly which statements ran
// against order_sagas.
func RunMigrations(ctx context.Context, logger *slog.Logger, db *gorm.DB) error {
	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		raw, readErr := migrationFS.ReadFile("migrations/" + name)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", name, readErr)
		}
		if execErr := db.WithContext(ctx).Exec(string(raw)).Error; execErr != nil {
			return fmt.Errorf("exec migration %s: %w", name, execErr)
		}
		logger.InfoContext(ctx, "migration applied",
			"module", "postgres.db",
			"layer", "adapter",
			"operation", "migrate",
			"outcome", "success",
			"migration", name,
		)
	}
	return nil
}

// migrationNames lists the embedded *.sql files in the order they apply.
func migrationNames() ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
