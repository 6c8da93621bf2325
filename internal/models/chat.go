package models

import "time"

// Chat is a private or group conversation.
type Chat struct {
	ID              int       `db:"id" json:"id"`
	Name            *string   `db:"name" json:"name,omitempty"`
	IsGroup         bool      `db:"is_group" json:"is_group"`
	AdminID         *int      `db:"admin_id" json:"admin_id,omitempty"`
	CreatedBy       int       `db:"created_by" json:"created_by"`
	LatestMessageID *int      `db:"latest_message_id" json:"-"`
	Avatar          *string   `db:"avatar" json:"avatar,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ChatMember is one user's membership row in a chat. Deleted and RestoredAt
// carry the per-user soft-delete and history-cutoff state of private chats.
// Row ids preserve insertion order; admin promotion relies on it.
type ChatMember struct {
	ID         int64      `db:"id" json:"-"`
	ChatID     int        `db:"chat_id" json:"chat_id"`
	UserID     int        `db:"user_id" json:"user_id"`
	Deleted    bool       `db:"deleted" json:"deleted"`
	RestoredAt *time.Time `db:"restored_at" json:"restored_at,omitempty"`
}

// ChatRef is the chat summary embedded in message payloads.
type ChatRef struct {
	ID      int     `json:"id"`
	Name    *string `json:"name,omitempty"`
	IsGroup bool    `json:"is_group"`
}

// Ref builds the embeddable summary. Group-only fields never leak through it.
func (c Chat) Ref() ChatRef {
	return ChatRef{ID: c.ID, Name: c.Name, IsGroup: c.IsGroup}
}
