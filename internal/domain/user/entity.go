package user

import "time"

// User represents the users table. Profiles are owned by the account service; this service reads them.
type User struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:64;not null" json:"name"`
	Email      string     `gorm:"size:255;uniqueIndex" json:"-"`
	LastOnline *time.Time `json:"lastOnline,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}
