package database

import (
	"errors"
	"time"

	"github.com/lensmirror/backend/internal/lens"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillLensUUID = "2026-08-10_backfill_lens_uuid_from_deeplink"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillLensUUID, apply: backfillLensUUIDFromDeeplink},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillLensUUIDFromDeeplink repairs rows imported before uuid derivation
// existed: their content hash is recoverable from the stored deeplink.
func backfillLensUUIDFromDeeplink(db *gorm.DB) error {
	var candidates []lens.Lens
	if err := db.Where("uuid = '' AND deeplink <> ''").Find(&candidates).Error; err != nil {
		return err
	}
	for _, candidate := range candidates {
		derived := lens.ParseUUID(candidate.Deeplink)
		if derived == "" {
			continue
		}
		if err := db.Model(&lens.Lens{}).
			Where("id = ?", candidate.ID).
			Update("uuid", derived).Error; err != nil {
			return err
		}
	}
	return nil
}
