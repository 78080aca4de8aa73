package storage

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisRecord is one completed analysis persisted by the sqlite history store.
type AnalysisRecord struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	RecordID      string         `gorm:"uniqueIndex;not null" json:"id"`
	FileName      string         `json:"file_name"`
	MediaType     string         `json:"media_type"`
	Size          int64          `json:"size"`
	Verdict       string         `gorm:"index" json:"verdict"`
	IsAIGenerated bool           `json:"is_ai_generated"`
	Confidence    float64        `json:"confidence"`
	Details       string         `gorm:"type:text" json:"details"`
	Metadata      datatypes.JSON `json:"metadata"`
	Logs          datatypes.JSON `json:"logs"`
	Mode          string         `json:"mode"`
	SchemaVersion string         `json:"schema_version"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}
