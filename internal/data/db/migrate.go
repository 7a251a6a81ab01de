package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/warungdigital/leadbot-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.Lead{},
		&types.LeadInteraction{},
		&types.LeadFormData{},
		&types.MessageTemplate{},
		&types.JobRun{},
	); err != nil {
		return err
	}

	for _, stmt := range []string{
		`DO $$ BEGIN
			ALTER TABLE "lead_interactions"
			ADD CONSTRAINT "fk_lead_interactions_lead_id"
			FOREIGN KEY ("lead_id") REFERENCES "leads"("id") ON DELETE CASCADE;
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
		`DO $$ BEGIN
			ALTER TABLE "lead_form_data"
			ADD CONSTRAINT "fk_lead_form_data_lead_id"
			FOREIGN KEY ("lead_id") REFERENCES "leads"("id") ON DELETE CASCADE;
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add foreign key: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	return AutoMigrateAll(s.db)
}
