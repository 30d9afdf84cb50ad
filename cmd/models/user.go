package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FullName              string    `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email                 string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role                  string    `gorm:"column:role;size:50;not null" json:"role"`
	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`

	Tutor *Tutor `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"tutor,omitempty"`
}

const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

type Tutor struct {
	gorm.Model
	UserID     uint    `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Bio        string  `gorm:"column:bio;type:text" json:"bio"`
	Subject    string  `gorm:"column:subject;size:255;not null" json:"subject"`
	HourlyRate float64 `gorm:"column:hourly_rate;not null" json:"hourly_rate"`

	// Aggregated from reviews when listing tutors, never stored.
	AverageRating float64 `gorm:"-" json:"average_rating"`
	ReviewCount   int64   `gorm:"-" json:"review_count"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Tutor) TableName() string {
	return "tutors"
}
