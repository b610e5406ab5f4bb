package models

import (
	"time"

	"github.com/google/uuid"
)

// PayloadMapping is a reusable extraction rule set. Each *_path field holds a
// dotted/indexed path into the payload; an empty string means "not mapped".
// ListPath names an array whose elements each yield one normalized record.
type PayloadMapping struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`

	ListPath       string `gorm:"type:text;not null;default:''" json:"list_path"`
	ArtistPath     string `gorm:"type:text;not null;default:''" json:"artist_path"`
	TitlePath      string `gorm:"type:text;not null;default:''" json:"title_path"`
	AlbumPath      string `gorm:"type:text;not null;default:''" json:"album_path"`
	ReportedAtPath string `gorm:"type:text;not null;default:''" json:"reported_at_path"`
	DurationPath   string `gorm:"type:text;not null;default:''" json:"duration_path"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (PayloadMapping) TableName() string {
	return "payload_mappings"
}
