package model

import (
	"time"
)

const (
	RoleMember    = "member"
	RoleTreasurer = "treasurer"
)

type User struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FullName       string    `gorm:"type:varchar(256);not null" json:"full_name"`
	Email          string    `gorm:"type:varchar(256);uniqueIndex;not null" json:"email"`
	HashedPassword string    `gorm:"type:varchar(256);not null" json:"-"`
	Role           string    `gorm:"type:varchar(20);not null;default:member" json:"role"`
	OrganizationID string    `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}

// Actor is the authenticated caller handed to every operation.
// Role-gated operations check the capability explicitly instead of
// branching on a user subtype.
type Actor struct {
	UserID         string
	OrganizationID string
	Role           string
}

func (a Actor) IsTreasurer() bool {
	return a.Role == RoleTreasurer
}
