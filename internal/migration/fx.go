package migration

import (
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() != "postgres" {
			return autoMigrateFallback(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// autoMigrateFallback covers the sqlite development mode, where the
// versioned migration driver does not apply. The generated unique index
// on (year, sequence_number) is replaced with a partial one so drafts,
// which all carry zero values, can coexist.
func autoMigrateFallback(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&invoicedomain.Invoice{}); err != nil {
		return err
	}
	if err := conn.Exec(`DROP INDEX IF EXISTS ux_invoices_year_sequence`).Error; err != nil {
		return err
	}
	return conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_year_sequence
		ON invoices(year, sequence_number) WHERE number IS NOT NULL`).Error
}
