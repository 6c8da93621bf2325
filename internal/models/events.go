package models

// Event is an outbound realtime event. Each kind carries a typed payload;
// the gateway marshals events as {"event": name, "data": payload}.
type Event interface {
	EventName() string
	EventData() any
}

// NewMessageEvent is delivered to every connection in the message's chat room.
type NewMessageEvent struct {
	Message MessageView
}

func (NewMessageEvent) EventName() string { return "newMessage" }
func (e NewMessageEvent) EventData() any  { return e.Message }

// ChatListUpdateEvent is broadcast to every connected client so inactive
// chat-list views can refresh without joining the room.
type ChatListUpdateEvent struct {
	ChatID        int         `json:"chatId"`
	LatestMessage MessageView `json:"latestMessage"`
}

func (ChatListUpdateEvent) EventName() string { return "chatListUpdate" }
func (e ChatListUpdateEvent) EventData() any  { return e }

// TypingEvent is delivered to the chat room, originator included.
type TypingEvent struct {
	UserID int `json:"userId"`
	ChatID int `json:"chatId"`
}

func (TypingEvent) EventName() string { return "typing" }
func (e TypingEvent) EventData() any  { return e }

// StopTypingEvent mirrors TypingEvent.
type StopTypingEvent struct {
	UserID int `json:"userId"`
	ChatID int `json:"chatId"`
}

func (StopTypingEvent) EventName() string { return "stopTyping" }
func (e StopTypingEvent) EventData() any  { return e }

// OnlineUsersEvent carries the full list of online user ids, not a delta.
type OnlineUsersEvent struct {
	UserIDs []int
}

func (OnlineUsersEvent) EventName() string { return "updateOnlineUsers" }
func (e OnlineUsersEvent) EventData() any  { return e.UserIDs }
