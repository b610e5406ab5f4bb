package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RawEvent is one observed data point: the normalized fields extracted from a
// poll plus the payload stored verbatim for audit. Append-only; rows are
// removed only by bulk clears, the retention sweep, or station cascade.
type RawEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StationID    uuid.UUID `gorm:"type:uuid;index;not null" json:"station_id"`
	ConnectionID uuid.UUID `gorm:"type:uuid;index;not null" json:"connection_id"`

	ObservedAt time.Time  `gorm:"type:timestamptz;index;not null" json:"observed_at"`
	ReportedAt *time.Time `gorm:"type:timestamptz" json:"reported_at"`

	ReportedArtist   *string `gorm:"type:text" json:"reported_artist"`
	ReportedTitle    *string `gorm:"type:text" json:"reported_title"`
	ReportedAlbum    *string `gorm:"type:text" json:"reported_album"`
	ReportedDuration *int64  `gorm:"column:reported_duration_seconds" json:"reported_duration_seconds"`

	RawPayload  datatypes.JSON `gorm:"type:jsonb;not null" json:"raw_payload"`
	PayloadHash string         `gorm:"type:text;not null" json:"payload_hash"`
	HTTPStatus  *int           `gorm:"column:http_status" json:"http_status"`
	ContentType *string        `gorm:"type:text" json:"content_type"`

	Station    *Station    `gorm:"foreignKey:StationID;constraint:OnDelete:CASCADE" json:"-"`
	Connection *Connection `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (RawEvent) TableName() string {
	return "raw_now_playing_events"
}
