package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nowplaying/internal/models"
)

type ListEventsParams struct {
	Limit        int
	Offset       int
	StationID    *uuid.UUID
	ConnectionID *uuid.UUID
	Before       *time.Time
}

type ClearEventsParams struct {
	StationID    *uuid.UUID
	ConnectionID *uuid.UUID
}

// StatusUpdate is the engine-owned slice of a Connection row. Error is nil
// unless Status is ERROR.
type StatusUpdate struct {
	ConnectionID uuid.UUID
	PolledAt     time.Time
	Status       string
	Error        *string
}

// Repository is the persistence contract for the engine and the admin API.
// RecordPollResult is the only write path for raw events plus connection
// status; it must be atomic per call.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Stations
	CreateStation(ctx context.Context, item *models.Station) error
	GetStation(ctx context.Context, id uuid.UUID) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	UpdateStation(ctx context.Context, item *models.Station) error
	DeleteStation(ctx context.Context, id uuid.UUID) (int64, error)

	// Payload mappings
	CreateMapping(ctx context.Context, item *models.PayloadMapping) error
	GetMapping(ctx context.Context, id uuid.UUID) (*models.PayloadMapping, error)
	ListMappings(ctx context.Context) ([]models.PayloadMapping, error)
	UpdateMapping(ctx context.Context, item *models.PayloadMapping) error
	DeleteMapping(ctx context.Context, id uuid.UUID) (int64, error)

	// Connections
	CreateConnection(ctx context.Context, item *models.Connection) error
	GetConnection(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]models.Connection, error)
	ListEnabledConnections(ctx context.Context) ([]models.Connection, error)
	UpdateConnection(ctx context.Context, item *models.Connection) error
	DeleteConnection(ctx context.Context, id uuid.UUID) (int64, error)
	SetConnectionEnabled(ctx context.Context, id uuid.UUID, enabled bool) (int64, error)

	// Raw events
	RecordPollResult(ctx context.Context, update StatusUpdate, events []models.RawEvent) error
	ListEvents(ctx context.Context, params ListEventsParams) ([]models.RawEvent, error)
	CountEvents(ctx context.Context, params ListEventsParams) (int64, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.RawEvent, error)
	LatestEvent(ctx context.Context, connectionID uuid.UUID) (*models.RawEvent, error)
	ClearEvents(ctx context.Context, params ClearEventsParams) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
