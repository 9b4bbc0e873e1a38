package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeMemberIDs = "2024-03-01_normalize_member_ids"

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
		{name: migrationNormalizeMemberIDs, apply: normalizeMemberIDs},
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
		if err := db.Transaction(migration.apply); err != nil {
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

// normalizeMemberIDs upper-cases identifiers imported from hand-typed spreadsheets so
// scans match members and their ledger rows.
func normalizeMemberIDs(tx *gorm.DB) error {
	if err := tx.Model(&members.Member{}).
		Where("member_id <> UPPER(TRIM(member_id))").
		Update("member_id", gorm.Expr("UPPER(TRIM(member_id))")).Error; err != nil {
		return err
	}
	return tx.Model(&payments.Transaction{}).
		Where("member_id <> UPPER(TRIM(member_id))").
		Update("member_id", gorm.Expr("UPPER(TRIM(member_id))")).Error
}
