package migrations

import (
	"gorm.io/gorm"
)

// Migration001AnalysisRecords creates the history table.
type Migration001AnalysisRecords struct{}

func (m *Migration001AnalysisRecords) Version() string {
	return "001_analysis_records"
}

func (m *Migration001AnalysisRecords) Description() string {
	return "Create analysis_records for completed analyses"
}

func (m *Migration001AnalysisRecords) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id VARCHAR(64) NOT NULL UNIQUE,
			file_name VARCHAR(255),
			media_type VARCHAR(128),
			size INTEGER NOT NULL DEFAULT 0,
			verdict VARCHAR(32),
			is_ai_generated BOOLEAN NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			details TEXT,
			metadata JSON,
			logs JSON,
			mode VARCHAR(32),
			schema_version VARCHAR(16),
			created_at DATETIME NOT NULL,
			expires_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_analysis_records_verdict ON analysis_records(verdict)`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_analysis_records_created_at ON analysis_records(created_at)`).Error
}
