package models

import "time"

// User is a persisted identity record.
type User struct {
	ID             int       `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	ProfilePicture *string   `db:"profile_picture" json:"profile_picture,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UserSummary is the public view of a user embedded in chat and message payloads.
type UserSummary struct {
	ID             int     `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Email          string  `db:"email" json:"email"`
	ProfilePicture *string `db:"profile_picture" json:"profile_picture,omitempty"`
}

// Summary strips credentials from a user record.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, ProfilePicture: u.ProfilePicture}
}
