package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/platform/storage"
)

type sqliteStore struct {
	db    *gorm.DB
	ttl   time.Duration
	limit int
}

// NewSQLite builds a sqlite-backed history store on a migrated database.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:    db,
		ttl:   cfg.TTL,
		limit: cfg.limit(),
	}, nil
}

func (s *sqliteStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id required")
	}
	logs, err := sonic.Marshal(rec.Logs)
	if err != nil {
		return err
	}
	meta, err := sonic.Marshal(rec.Metadata)
	if err != nil {
		return err
	}

	row := &storage.AnalysisRecord{
		RecordID:      rec.ID,
		FileName:      rec.FileName,
		MediaType:     rec.MediaType,
		Size:          rec.Size,
		Verdict:       rec.Verdict,
		IsAIGenerated: rec.IsAIGenerated,
		Confidence:    rec.Confidence,
		Details:       rec.Details,
		Metadata:      meta,
		Logs:          logs,
		Mode:          rec.Mode,
		SchemaVersion: rec.SchemaVersion,
		CreatedAt:     rec.CreatedAt.UTC(),
	}
	if s.ttl > 0 {
		exp := row.CreatedAt.Add(s.ttl)
		row.ExpiresAt = &exp
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_id = ?", rec.ID).Delete(&storage.AnalysisRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		keep := tx.Model(&storage.AnalysisRecord{}).
			Select("id").
			Order("created_at DESC, id DESC").
			Limit(s.limit)
		return tx.Where("id NOT IN (?)", keep).Delete(&storage.AnalysisRecord{}).Error
	})
}

func (s *sqliteStore) live(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&storage.AnalysisRecord{}).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC())
}

func (s *sqliteStore) Get(ctx context.Context, id string) (Record, error) {
	var row storage.AnalysisRecord
	err := s.live(ctx).Where("record_id = ?", id).First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return fromRow(row)
}

func (s *sqliteStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := s.live(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []storage.AnalysisRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("record_id = ?", id).Delete(&storage.AnalysisRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		IsAIGenerated bool
		Count         int64
	}
	if err := s.live(ctx).
		Select("is_ai_generated, COUNT(*) AS count").
		Group("is_ai_generated").
		Scan(&rows).Error; err != nil {
		return Stats{}, err
	}

	stats := Stats{Driver: DriverSQLite}
	for _, row := range rows {
		stats.Total += row.Count
		if row.IsAIGenerated {
			stats.Synthetic += row.Count
		} else {
			stats.Authentic += row.Count
		}
	}
	return stats, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func fromRow(row storage.AnalysisRecord) (Record, error) {
	rec := Record{
		ID:            row.RecordID,
		FileName:      row.FileName,
		MediaType:     row.MediaType,
		Size:          row.Size,
		Verdict:       row.Verdict,
		IsAIGenerated: row.IsAIGenerated,
		Confidence:    row.Confidence,
		Details:       row.Details,
		Mode:          row.Mode,
		SchemaVersion: row.SchemaVersion,
		CreatedAt:     row.CreatedAt,
	}
	if len(row.Logs) > 0 {
		if err := sonic.Unmarshal(row.Logs, &rec.Logs); err != nil {
			return Record{}, fmt.Errorf("decode logs of %s: %w", row.RecordID, err)
		}
	}
	if len(row.Metadata) > 0 {
		var md detection.Metadata
		if err := sonic.Unmarshal(row.Metadata, &md); err != nil {
			return Record{}, fmt.Errorf("decode metadata of %s: %w", row.RecordID, err)
		}
		rec.Metadata = md
	}
	return rec, nil
}
