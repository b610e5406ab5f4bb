package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Stations ---------------------------------------------------------------

func (s *Store) CreateStation(ctx context.Context, item *models.Station) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetStation(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Station
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStations(ctx context.Context) ([]models.Station, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Station
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateStation(ctx context.Context, item *models.Station) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// DeleteStation removes the station together with its connections and their
// raw events. The cascade is done explicitly in one transaction so it does
// not depend on FK constraints being present.
func (s *Store) DeleteStation(ctx context.Context, id uuid.UUID) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var affected int64
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("station_id = ?", id).Delete(&models.RawEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("station_id = ?", id).Delete(&models.Connection{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Station{}, "id = ?", id)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// --- Payload mappings -------------------------------------------------------

func (s *Store) CreateMapping(ctx context.Context, item *models.PayloadMapping) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetMapping(ctx context.Context, id uuid.UUID) (*models.PayloadMapping, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PayloadMapping
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListMappings(ctx context.Context) ([]models.PayloadMapping, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PayloadMapping
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateMapping(ctx context.Context, item *models.PayloadMapping) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// DeleteMapping nulls the reference on any connection using the mapping
// before removing it; those connections fall back to per-type defaults.
func (s *Store) DeleteMapping(ctx context.Context, id uuid.UUID) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var affected int64
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Connection{}).
			Where("payload_mapping_id = ?", id).
			Update("payload_mapping_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.PayloadMapping{}, "id = ?", id)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// --- Connections ------------------------------------------------------------

func (s *Store) CreateConnection(ctx context.Context, item *models.Connection) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetConnection(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Connection
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]models.Connection, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Connection
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListEnabledConnections(ctx context.Context) ([]models.Connection, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Connection
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateConnection writes configuration fields only; runtime status columns
// stay owned by RecordPollResult.
func (s *Store) UpdateConnection(ctx context.Context, item *models.Connection) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", item.ID).
		Select("station_id", "payload_mapping_id", "name", "connection_type", "url",
			"poll_interval_seconds", "headers", "enabled", "use_duration_polling", "updated_at").
		Updates(map[string]any{
			"station_id":            item.StationID,
			"payload_mapping_id":    item.PayloadMappingID,
			"name":                  item.Name,
			"connection_type":       item.ConnectionType,
			"url":                   item.URL,
			"poll_interval_seconds": item.PollIntervalSecs,
			"headers":               item.Headers,
			"enabled":               item.Enabled,
			"use_duration_polling":  item.UseDurationPolling,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (s *Store) DeleteConnection(ctx context.Context, id uuid.UUID) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var affected int64
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("connection_id = ?", id).Delete(&models.RawEvent{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Connection{}, "id = ?", id)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

func (s *Store) SetConnectionEnabled(ctx context.Context, id uuid.UUID, enabled bool) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{"enabled": enabled, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// --- Raw events -------------------------------------------------------------

// RecordPollResult inserts a poll cycle's events and updates the owning
// connection's status fields in a single transaction, so readers never see a
// half-written cycle.
func (s *Store) RecordPollResult(ctx context.Context, update repository.StatusUpdate, events []models.RawEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.InTx(ctx, func(tx *gorm.DB) error {
		if len(events) > 0 {
			if err := tx.Create(&events).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Connection{}).
			Where("id = ?", update.ConnectionID).
			Updates(map[string]any{
				"last_polled_at": update.PolledAt,
				"last_status":    update.Status,
				"last_error":     update.Error,
				"updated_at":     time.Now().UTC(),
			}).Error
	})
}

func applyEventFilters(query *gorm.DB, params repository.ListEventsParams) *gorm.DB {
	if params.StationID != nil {
		query = query.Where("station_id = ?", *params.StationID)
	}
	if params.ConnectionID != nil {
		query = query.Where("connection_id = ?", *params.ConnectionID)
	}
	if params.Before != nil && !params.Before.IsZero() {
		query = query.Where("observed_at < ?", *params.Before)
	}
	return query
}

func (s *Store) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.RawEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyEventFilters(s.db.WithContext(ctx).Model(&models.RawEvent{}), params)
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.RawEvent
	if err := query.Order("observed_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountEvents(ctx context.Context, params repository.ListEventsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyEventFilters(s.db.WithContext(ctx).Model(&models.RawEvent{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.RawEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.RawEvent
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) LatestEvent(ctx context.Context, connectionID uuid.UUID) (*models.RawEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.RawEvent
	err := s.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("observed_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ClearEvents(ctx context.Context, params repository.ClearEventsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx)
	if params.StationID != nil {
		query = query.Where("station_id = ?", *params.StationID)
	}
	if params.ConnectionID != nil {
		query = query.Where("connection_id = ?", *params.ConnectionID)
	}
	if params.StationID == nil && params.ConnectionID == nil {
		query = query.Where("1 = 1")
	}
	res := query.Delete(&models.RawEvent{})
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil || cutoff.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("observed_at < ?", cutoff).Delete(&models.RawEvent{})
	return res.RowsAffected, res.Error
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
