package models

import "time"

// Message is an immutable chat message.
type Message struct {
	ID        int       `db:"id" json:"id"`
	ChatID    int       `db:"chat_id" json:"chat_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageView is a message joined with its sender and chat summaries, the
// shape returned by the REST API and broadcast over websockets.
type MessageView struct {
	ID        int         `json:"id"`
	Sender    UserSummary `json:"sender"`
	Chat      ChatRef     `json:"chat"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
