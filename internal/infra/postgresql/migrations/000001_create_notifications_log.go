package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createNotificationsLogTable() *gormigrate.Migration {
	// Snapshot of the table as first released; later columns are added by
	// their own migrations.
	type notificationsLog struct {
		ID               string    `gorm:"type:uuid;primaryKey"`
		RecipientEmail   string    `gorm:"type:varchar(255);not null"`
		RecipientPhone   string    `gorm:"type:varchar(32)"`
		NotificationType string    `gorm:"type:varchar(40);not null"`
		Channel          string    `gorm:"type:varchar(10);not null"`
		Subject          string    `gorm:"type:varchar(500);not null"`
		Message          string    `gorm:"type:varchar(2000);not null"`
		Status           string    `gorm:"type:varchar(20);not null"`
		ErrorMessage     *string   `gorm:"type:text"`
		ReferenceID      string    `gorm:"type:varchar(64)"`
		CreatedAt        time.Time `gorm:"not null"`
		SentAt           *time.Time
		FailedAt         *time.Time
	}

	return &gormigrate.Migration{
		ID: "000001_create_notifications_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Table("notifications_log").AutoMigrate(&notificationsLog{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_notifications_log_created_at ON notifications_log (created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_log_status_created ON notifications_log (status, created_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("notifications_log")
		},
	}
}
