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

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrAlreadyMember = errors.New("user is already a member")
)

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	GetMembers(ctx context.Context, chatID int) ([]models.ChatMember, error)
	MembersByChatIDs(ctx context.Context, chatIDs []int) (map[int][]models.ChatMember, error)
	FindPrivateChat(ctx context.Context, userID, otherID int) (models.Chat, bool, error)
	CreatePrivateChat(ctx context.Context, createdBy, otherID int) (models.Chat, error)
	CreateGroupChat(ctx context.Context, createdBy int, name string, memberIDs []int) (models.Chat, error)
	RenameChat(ctx context.Context, chatID int, name string) error
	AddMember(ctx context.Context, chatID, userID int) error
	RemoveMember(ctx context.Context, chatID, userID int) error
	SetAdmin(ctx context.Context, chatID, userID int) error
	MarkDeleted(ctx context.Context, chatID, userID int) error
	RestoreMember(ctx context.Context, chatID, userID int, at time.Time) error
	SetLatestMessage(ctx context.Context, chatID, messageID int) error
	PurgeChat(ctx context.Context, chatID int) error
	ListChats(ctx context.Context, userID int) ([]models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, name, is_group, admin_id, created_by, latest_message_id, avatar, created_at, updated_at`

// scrubGroupFields clears group-only fields on private chats.
func scrubGroupFields(chat *models.Chat) {
	if !chat.IsGroup {
		chat.AdminID = nil
		chat.Avatar = nil
	}
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	scrubGroupFields(&chat)
	return chat, nil
}

// GetMembers returns membership rows in insertion order.
func (r *ChatRepo) GetMembers(ctx context.Context, chatID int) ([]models.ChatMember, error) {
	var members []models.ChatMember
	err := r.db.SelectContext(ctx, &members,
		`SELECT id, chat_id, user_id, deleted, restored_at FROM chat_members WHERE chat_id=$1 ORDER BY id`, chatID)
	return members, err
}

// MembersByChatIDs loads membership rows for several chats at once.
func (r *ChatRepo) MembersByChatIDs(ctx context.Context, chatIDs []int) (map[int][]models.ChatMember, error) {
	result := map[int][]models.ChatMember{}
	if len(chatIDs) == 0 {
		return result, nil
	}
	var members []models.ChatMember
	err := r.db.SelectContext(ctx, &members,
		`SELECT id, chat_id, user_id, deleted, restored_at FROM chat_members WHERE chat_id = ANY($1) ORDER BY id`,
		pq.Array(chatIDs))
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		result[m.ChatID] = append(result[m.ChatID], m)
	}
	return result, nil
}

// FindPrivateChat looks for the non-group chat whose member set is exactly
// the two given users.
func (r *ChatRepo) FindPrivateChat(ctx context.Context, userID, otherID int) (models.Chat, bool, error) {
	var chat models.Chat
	query := `SELECT ` + prefixed("c.") + ` FROM chats c
        WHERE c.is_group = FALSE
        AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id=c.id AND user_id=$1)
        AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id=c.id AND user_id=$2)
        AND (SELECT COUNT(*) FROM chat_members WHERE chat_id=c.id) = 2
        LIMIT 1`
	err := r.db.GetContext(ctx, &chat, query, userID, otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, nil
	}
	if err != nil {
		return models.Chat{}, false, err
	}
	scrubGroupFields(&chat)
	return chat, true, nil
}

// CreatePrivateChat creates a two-member non-group chat.
func (r *ChatRepo) CreatePrivateChat(ctx context.Context, createdBy, otherID int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, created_by) VALUES (FALSE, $1) RETURNING `+chatColumns,
		createdBy).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}
	for _, userID := range []int{createdBy, otherID} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, userID); err != nil {
			return models.Chat{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// CreateGroupChat creates a group chat with the creator as admin. Member
// order is preserved; the creator is appended last unless already listed.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, createdBy int, name string, memberIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (name, is_group, admin_id, created_by) VALUES ($1, TRUE, $2, $2) RETURNING `+chatColumns,
		name, createdBy).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	seen := map[int]struct{}{}
	ordered := make([]int, 0, len(memberIDs)+1)
	for _, id := range append(append([]int{}, memberIDs...), createdBy) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	for _, userID := range ordered {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, userID); err != nil {
			return models.Chat{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// RenameChat updates the chat name.
func (r *ChatRepo) RenameChat(ctx context.Context, chatID int, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET name=$2, updated_at=NOW() WHERE id=$1`, chatID, name)
	return requireRow(res, err, ErrChatNotFound)
}

// AddMember inserts a membership row.
func (r *ChatRepo) AddMember(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, userID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyMember
	}
	if err == nil {
		_, err = r.db.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	}
	return err
}

// RemoveMember deletes a membership row.
func (r *ChatRepo) RemoveMember(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err == nil {
		_, err = r.db.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	}
	return err
}

// SetAdmin reassigns the group admin.
func (r *ChatRepo) SetAdmin(ctx context.Context, chatID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET admin_id=$2, updated_at=NOW() WHERE id=$1`, chatID, userID)
	return requireRow(res, err, ErrChatNotFound)
}

// MarkDeleted records a per-user soft delete and drops any stale
// restoration cutoff for that user.
func (r *ChatRepo) MarkDeleted(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET deleted=TRUE, restored_at=NULL WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// RestoreMember clears the soft delete and stamps a fresh history cutoff.
func (r *ChatRepo) RestoreMember(ctx context.Context, chatID, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET deleted=FALSE, restored_at=$3 WHERE chat_id=$1 AND user_id=$2`, chatID, userID, at)
	return err
}

// SetLatestMessage points the chat at its newest message and bumps
// updated_at so chat lists sort correctly.
func (r *ChatRepo) SetLatestMessage(ctx context.Context, chatID, messageID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET latest_message_id=$2, updated_at=NOW() WHERE id=$1`, chatID, messageID)
	return err
}

// PurgeChat removes the chat's messages and then the chat itself. A second
// purge of the same chat is a no-op, which keeps the race between two
// simultaneous last-member deletes harmless.
func (r *ChatRepo) PurgeChat(ctx context.Context, chatID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id=$1`, chatID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListChats returns chats where the user is a member and has not soft-deleted
// them, hiding private-chat stubs that were never used.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.Chat, error) {
	query := `SELECT ` + prefixed("c.") + ` FROM chats c
        INNER JOIN chat_members m ON m.chat_id = c.id AND m.user_id=$1
        WHERE m.deleted = FALSE
        AND (c.latest_message_id IS NOT NULL OR c.created_by=$1 OR c.is_group)
        ORDER BY c.updated_at DESC`
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, err
	}
	for i := range chats {
		scrubGroupFields(&chats[i])
	}
	return chats, nil
}

func prefixed(p string) string {
	return p + `id, ` + p + `name, ` + p + `is_group, ` + p + `admin_id, ` + p + `created_by, ` +
		p + `latest_message_id, ` + p + `avatar, ` + p + `created_at, ` + p + `updated_at`
}

func requireRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
