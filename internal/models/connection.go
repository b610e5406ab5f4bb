package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Connection types accepted by the engine.
const (
	TypeHTTPJSON = "http_json"
	TypeHTTPXML  = "http_xml"
	TypeHTTPText = "http_text"
	TypeWSJSON   = "ws_json"
	TypeRSS      = "rss"
)

// Runtime status values. LastStatus is nil until the first poll completes.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Connection is the pollable unit: one external now-playing feed bound to a
// Station. The last_* fields are written only by the engine (poll worker or
// test service), never by API clients.
type Connection struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StationID        uuid.UUID      `gorm:"type:uuid;index;not null" json:"station_id"`
	PayloadMappingID *uuid.UUID     `gorm:"type:uuid;index" json:"payload_mapping_id"`
	Name             string         `gorm:"type:text;not null" json:"name"`
	ConnectionType   string         `gorm:"type:text;not null" json:"connection_type"`
	URL              string         `gorm:"type:text;not null" json:"url"`
	PollIntervalSecs int            `gorm:"column:poll_interval_seconds;not null;default:60" json:"poll_interval_seconds"`
	Headers          datatypes.JSON `gorm:"type:jsonb" json:"headers"`
	Enabled          bool           `gorm:"not null;default:false" json:"enabled"`

	// Adaptive scheduling: when the feed reports track duration, the next
	// poll can be deferred until shortly after the track should end.
	UseDurationPolling bool `gorm:"not null;default:false" json:"use_duration_polling"`

	LastPolledAt *time.Time `gorm:"type:timestamptz" json:"last_polled_at"`
	LastStatus   *string    `gorm:"type:text" json:"last_status"`
	LastError    *string    `gorm:"type:text" json:"last_error"`

	Station        *Station        `gorm:"foreignKey:StationID;constraint:OnDelete:CASCADE" json:"-"`
	PayloadMapping *PayloadMapping `gorm:"foreignKey:PayloadMappingID;constraint:OnDelete:SET NULL" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Connection) TableName() string {
	return "now_playing_connections"
}

// ValidType reports whether t is one of the supported connection types.
func ValidType(t string) bool {
	switch t {
	case TypeHTTPJSON, TypeHTTPXML, TypeHTTPText, TypeWSJSON, TypeRSS:
		return true
	}
	return false
}
