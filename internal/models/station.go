package models

import (
	"time"

	"github.com/google/uuid"
)

type Station struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"type:text;not null" json:"name"`
	Callsign   *string   `gorm:"type:text" json:"callsign"`
	WebsiteURL *string   `gorm:"type:text" json:"website_url"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Station) TableName() string {
	return "stations"
}
