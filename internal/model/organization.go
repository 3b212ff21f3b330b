package model

import (
	"time"
)

type Organization struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(256);index;not null" json:"name"`
	FEIN      *string   `gorm:"type:varchar(16);uniqueIndex" json:"fein"`
	NTEECode  *string   `gorm:"type:varchar(16)" json:"ntee_code"`
	Address   *string   `gorm:"type:varchar(256)" json:"address"`
	City      *string   `gorm:"type:varchar(128)" json:"city"`
	State     *string   `gorm:"type:varchar(64)" json:"state"`
	ZipCode   *string   `gorm:"type:varchar(16)" json:"zip_code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Organization) TableName() string {
	return "organization"
}
