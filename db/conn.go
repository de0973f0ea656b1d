// Package db contains everything related to the request store connection
package db

import (
	"fmt"
	"os"

	"grcadmin/account-api/internal/model"
	"grcadmin/account-api/pkg/util"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// activeIndex enforces "at most one active email change request per account"
// at the storage layer. A plain application-level check-then-insert would
// race under concurrent requests; the partial unique index can't.
const activeIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_email_change_active
ON email_change_requests (account_id)
WHERE status IN ('pending', 'old_email_verified', 'new_email_verified')`

func New() (*gorm.DB, error) {
	var dial gorm.Dialector

	switch viper.GetString("db.driver") {
	case "postgres":
		dial = postgres.Open(viper.GetString("db.dsn"))
	default:
		path := viper.GetString("db.path")

		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() {
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to /app/%v", path)
				}
			}
		}

		dial = sqlite.Open(path)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		// Maps unique index violations to gorm.ErrDuplicatedKey on both
		// drivers, which the workflow relies on for ErrAlreadyActive
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema and the active request index. Split out so
// tests can run it against their own in-memory databases.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(model.User{}, model.EmailChangeRequest{}, model.VerificationCode{}, model.ResendRequest{}, model.Migration{})
	if err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	if err := db.Exec(activeIndex).Error; err != nil {
		return fmt.Errorf("failed to create active request index, %w", err)
	}

	err = db.Where(model.Migration{Name: "idx_email_change_active"}).
		FirstOrCreate(&model.Migration{Name: "idx_email_change_active"}).
		Error
	if err != nil {
		return fmt.Errorf("failed to record schema migration, %w", err)
	}

	return nil
}
