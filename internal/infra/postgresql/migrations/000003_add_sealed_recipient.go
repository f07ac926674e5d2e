package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addSealedRecipientColumns() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_sealed_recipient",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`ALTER TABLE notifications_log ADD COLUMN IF NOT EXISTS recipient_email_sealed TEXT`,
				`ALTER TABLE notifications_log ADD COLUMN IF NOT EXISTS customer_id BIGINT`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_log_pending_created ON notifications_log (created_at) WHERE status = 'PENDING'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP INDEX IF EXISTS idx_notifications_log_pending_created`,
				`ALTER TABLE notifications_log DROP COLUMN IF EXISTS customer_id`,
				`ALTER TABLE notifications_log DROP COLUMN IF EXISTS recipient_email_sealed`,
			})
		},
	}
}
