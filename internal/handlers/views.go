package handlers

import (
	"context"
	"time"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

// chatResponse is a chat joined with user summaries and its latest message.
type chatResponse struct {
	ID            int                  `json:"id"`
	Name          *string              `json:"name,omitempty"`
	IsGroup       bool                 `json:"is_group"`
	Users         []models.UserSummary `json:"users"`
	Admin         *models.UserSummary  `json:"admin,omitempty"`
	Avatar        *string              `json:"avatar,omitempty"`
	CreatedBy     int                  `json:"created_by"`
	LatestMessage *models.MessageView  `json:"latest_message,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// chatViewBuilder assembles chat responses from the repositories. Both the
// chat and message handlers render chats, so the joins live here.
type chatViewBuilder struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
}

func (b chatViewBuilder) buildOne(ctx context.Context, chat models.Chat) (chatResponse, error) {
	responses, err := b.build(ctx, []models.Chat{chat})
	if err != nil {
		return chatResponse{}, err
	}
	return responses[0], nil
}

func (b chatViewBuilder) build(ctx context.Context, chats []models.Chat) ([]chatResponse, error) {
	chatIDs := make([]int, 0, len(chats))
	for _, chat := range chats {
		chatIDs = append(chatIDs, chat.ID)
	}
	membersByChat, err := b.chatRepo.MembersByChatIDs(ctx, chatIDs)
	if err != nil {
		return nil, err
	}

	messageIDs := make([]int, 0, len(chats))
	for _, chat := range chats {
		if chat.LatestMessageID != nil {
			messageIDs = append(messageIDs, *chat.LatestMessageID)
		}
	}
	latestByID, err := b.messageRepo.MessagesByIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}

	userIDSet := map[int]struct{}{}
	for _, members := range membersByChat {
		for _, m := range members {
			userIDSet[m.UserID] = struct{}{}
		}
	}
	for _, msg := range latestByID {
		userIDSet[msg.SenderID] = struct{}{}
	}
	userIDs := make([]int, 0, len(userIDSet))
	for id := range userIDSet {
		userIDs = append(userIDs, id)
	}
	summaries, err := b.userRepo.SummariesByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	responses := make([]chatResponse, 0, len(chats))
	for _, chat := range chats {
		resp := chatResponse{
			ID:        chat.ID,
			Name:      chat.Name,
			IsGroup:   chat.IsGroup,
			Avatar:    chat.Avatar,
			CreatedBy: chat.CreatedBy,
			CreatedAt: chat.CreatedAt,
			UpdatedAt: chat.UpdatedAt,
			Users:     []models.UserSummary{},
		}
		for _, m := range membersByChat[chat.ID] {
			if summary, ok := summaries[m.UserID]; ok {
				resp.Users = append(resp.Users, summary)
			}
		}
		if chat.IsGroup && chat.AdminID != nil {
			if summary, ok := summaries[*chat.AdminID]; ok {
				admin := summary
				resp.Admin = &admin
			}
		}
		if chat.LatestMessageID != nil {
			if msg, ok := latestByID[*chat.LatestMessageID]; ok {
				view := messageView(msg, summaries[msg.SenderID], chat)
				resp.LatestMessage = &view
			}
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func messageView(msg models.Message, sender models.UserSummary, chat models.Chat) models.MessageView {
	return models.MessageView{
		ID:        msg.ID,
		Sender:    sender,
		Chat:      chat.Ref(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
