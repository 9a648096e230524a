package model

import (
	"encoding/json"
	"time"
)

// Mapping links a re-hosted asset URL to the id issued by the registrar.
type Mapping struct {
	URL        string    `gorm:"primaryKey;column:url;type:TEXT"`
	ExternalID string    `gorm:"column:external_id;not null;default:''"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"`
}

type MappingList []Mapping

func (Mapping) TableName() string {
	return "asset_mappings"
}

func (m Mapping) String() string {
	v, _ := json.Marshal(m)
	return string(v)
}
