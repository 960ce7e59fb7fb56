package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Models lists every persisted table, in dependency order.
func Models() []any {
	return []any{
		&taxdomain.TaxRate{},
		&catalogdomain.Plan{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.InvoiceSequence{},
		&invoicedomain.BillingRecord{},
		&auditdomain.AuditLog{},
		&reconciliationdomain.ProcessedEvent{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for sqlite and
// mysql, which the embedded SQL does not target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
