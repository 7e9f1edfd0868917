// Package repo implements the data persistence layer for the crawler,
// backed by GORM. This file provides the deduplicating store: content
// records keyed by URI with last-write-wins upsert semantics and a
// two-tier batch failure model.
package repo

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// StoreEntity upserts one canonical record by URI. All columns except the
// key follow the latest write.
func StoreEntity(ctx context.Context, db *gorm.DB, content domain.RedditContent) error {
	entity, err := domain.EntityFromContent(content)
	if err != nil {
		return err
	}
	return upsertEntity(ctx, db, entity)
}

// StoreBatch upserts many records inside one transaction. Item-level
// failures (a malformed record, a single rejected row) are logged and
// skipped so one bad item cannot lose the rest of the batch; only a
// transaction-level fault rolls everything back. Returns the number of rows
// stored.
func StoreBatch(ctx context.Context, db *gorm.DB, contents []domain.RedditContent) (int, error) {
	if len(contents) == 0 {
		return 0, nil
	}

	stored := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, content := range contents {
			entity, err := domain.EntityFromContent(content)
			if err != nil {
				log.Warn().Err(err).Str("id", content.ID).Msg("skipping malformed record in batch")
				continue
			}
			if err := upsertEntity(ctx, tx, entity); err != nil {
				// A failed statement poisons a SQL transaction; treat it as
				// transactional and let the caller decide. Conversion errors
				// above are the per-item tolerance path.
				return err
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

// CountEntities returns the total number of stored records.
func CountEntities(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.DataEntity{}).Count(&total).Error
	return total, err
}

// CountEntitiesByLabel returns the number of records for one community.
// The label goes through the same normalization as the write path, so the
// caller may pass either "r/GoLang" or "golang".
func CountEntitiesByLabel(ctx context.Context, db *gorm.DB, label string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.DataEntity{}).
		Where("label = ?", domain.NormalizeLabel(label, domain.MaxLabelLength)).
		Count(&total).Error
	return total, err
}

func upsertEntity(ctx context.Context, db *gorm.DB, entity domain.DataEntity) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"datetime", "time_bucket_id", "source", "label", "content", "content_size_bytes",
		}),
	}).Create(&entity).Error
}
