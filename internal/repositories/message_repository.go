package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions with the per-chat message log.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error)
	ListMessages(ctx context.Context, chatID int, visibleAfter *time.Time, limit, offset int) ([]models.Message, error)
	CountMessages(ctx context.Context, chatID int, visibleAfter *time.Time) (int, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MessagesByIDs(ctx context.Context, ids []int) (map[int]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message to the chat log.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, chat_id, sender_id, content, created_at`,
		chatID, senderID, content).StructScan(&msg)
	return msg, err
}

// ListMessages returns messages newest first. A non-nil visibleAfter hides
// history from before the caller's restoration cutoff.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int, visibleAfter *time.Time, limit, offset int) ([]models.Message, error) {
	query := `SELECT id, chat_id, sender_id, content, created_at FROM messages
        WHERE chat_id=$1 AND ($2::timestamptz IS NULL OR created_at >= $2)
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, chatID, visibleAfter, limit, offset)
	return msgs, err
}

// CountMessages counts messages visible to the caller.
func (r *MessageRepo) CountMessages(ctx context.Context, chatID int, visibleAfter *time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE chat_id=$1 AND ($2::timestamptz IS NULL OR created_at >= $2)`,
		chatID, visibleAfter)
	return count, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, chat_id, sender_id, content, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MessagesByIDs loads messages keyed by id.
func (r *MessageRepo) MessagesByIDs(ctx context.Context, ids []int) (map[int]models.Message, error) {
	result := map[int]models.Message{}
	if len(ids) == 0 {
		return result, nil
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, chat_id, sender_id, content, created_at FROM messages WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		result[m.ID] = m
	}
	return result, nil
}
